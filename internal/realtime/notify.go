package realtime

// Notifier pushes permission-change events to affected users so clients can
// refresh their cached grant snapshot without polling.
type Notifier struct {
	hub *Hub
}

// NewNotifier constructs a Notifier over the hub.
func NewNotifier(hub *Hub) *Notifier {
	if hub == nil {
		return nil
	}
	return &Notifier{hub: hub}
}

// PermissionsUpdated tells a user their grants changed at the given scope
// ("table", "field", "row", ...) so the client can refetch its snapshot.
func (n *Notifier) PermissionsUpdated(userID int64, scope string, detail map[string]any) {
	if n == nil || userID == 0 {
		return
	}

	meta := map[string]any{"scope": scope}
	n.hub.BroadcastToUser(StreamPermissions, userID, Message{
		Event: "permissions_updated",
		Data:  detail,
		Meta:  meta,
	})
}

// EventSender adapts the hub to the masking fan-out surface.
type EventSender struct {
	hub *Hub
}

// NewEventSender constructs the hub-backed sender for row change events.
func NewEventSender(hub *Hub) *EventSender {
	if hub == nil {
		return nil
	}
	return &EventSender{hub: hub}
}

// BroadcastStream sends the default copy of a row change event to everyone
// on the table stream except the excluded users.
func (s *EventSender) BroadcastStream(stream string, payload any, excludeUserIDs []int64) {
	s.hub.BroadcastStreamExcept(stream, Message{Event: "rows_changed", Data: payload}, excludeUserIDs)
}

// SendToUser delivers an individually masked copy of a row change event.
func (s *EventSender) SendToUser(stream string, userID int64, payload any) {
	s.hub.BroadcastToUser(stream, userID, Message{Event: "rows_changed", Data: payload})
}
