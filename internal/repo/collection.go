package repo

import "strings"

const (
	collectionPrefix  = "papers_"
	maxCollectionName = 63
)

// CollectionName maps a session id onto its index partition name. Characters
// outside [A-Za-z0-9._-] become '_' and the result is cut to 63 bytes.
func CollectionName(sessionID string) string {
	var sb strings.Builder
	sb.WriteString(collectionPrefix)
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	if len(name) > maxCollectionName {
		name = name[:maxCollectionName]
	}
	return name
}
