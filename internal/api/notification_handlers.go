package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/calendararchive/calendar-server/internal/domain"
)

func (s *Server) registerNotificationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listNotifications",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications",
		Summary:     "List notifications",
		Description: "Returns recent broadcasts visible to the caller, newest first",
		Tags:        []string{"Notifications"},
		Security:    []map[string][]string{{"bearer": {}}, {}},
	}, s.handleListNotifications)
}

// ListNotificationsInput contains parameters for listing notifications.
type ListNotificationsInput struct {
	Authorization string `header:"Authorization"`
	Limit         int    `query:"limit" minimum:"0" maximum:"100" doc:"Maximum notifications (0 uses the default)"`
}

// NotificationListResponse is a page of notifications.
type NotificationListResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
}

// NotificationListOutput wraps the list for Huma.
type NotificationListOutput struct {
	Body NotificationListResponse
}

func (s *Server) handleListNotifications(ctx context.Context, input *ListNotificationsInput) (*NotificationListOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	list, err := s.services.Notifications.List(ctx, actor, input.Limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	return &NotificationListOutput{Body: NotificationListResponse{Notifications: list}}, nil
}
