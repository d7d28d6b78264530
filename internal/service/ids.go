package service

import "github.com/google/uuid"

var newSessionID = func() string {
	return uuid.NewString()
}
