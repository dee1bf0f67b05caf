package domain

import (
	"strings"
	"time"
)

type DeviceToken struct {
	UserID     string
	AppVariant AppVariant
	Token      string
	UpdatedAt  time.Time
}

func NewDeviceToken(userID, appVariant, token string) (DeviceToken, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	v, ok := ParseAppVariant(appVariant)
	if userID == "" || token == "" || !ok {
		return DeviceToken{}, ErrInvalidArgument
	}
	return DeviceToken{UserID: userID, AppVariant: v, Token: token}, nil
}
