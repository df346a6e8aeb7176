package service

import (
	notification "flock/internal/notification/models"
)

type (
	notificationRequest = notification.CreateRequest
	notificationOptions = notification.CreateOptions
	notificationModel   = notification.Notification
)
