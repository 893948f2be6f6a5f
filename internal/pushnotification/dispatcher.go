package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/novelguild/internal/eventbus"
	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/pkg/panicerr"
)

// Dispatcher turns workflow completion and failure events into push
// notifications for the workflow owner.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

// Start consumes events until ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.InfoContext(ctx, "push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := panicerr.Try(func() error {
				d.handle(ctx, event)
				return nil
			}); err != nil {
				slog.ErrorContext(ctx, "push dispatcher: handler panicked", "event_id", event.ID, "error", err)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	payload, ok := notificationFor(event)
	if !ok {
		return
	}
	n := d.sender.Send(ctx, event.Metadata["user_id"], payload)
	slog.DebugContext(ctx, "push dispatcher: notification sent", "event", event.Type, "workflow_id", event.ResourceID, "delivered", n)
}

func notificationFor(event *eventbus.Event) (*NotificationPayload, bool) {
	project := event.Metadata["project_name"]
	url := fmt.Sprintf("/workflows/%s", event.ResourceID)
	switch event.Type {
	case eventbus.WorkflowCompleted:
		return &NotificationPayload{
			Title: "创作完成",
			Body:  fmt.Sprintf("《%s》已完成全部创作阶段", project),
			URL:   url,
			Tag:   event.ResourceID,
		}, true
	case eventbus.WorkflowFailed:
		phase := workflow.Phase(event.Metadata["phase"]).Name()
		return &NotificationPayload{
			Title: "创作中断",
			Body:  fmt.Sprintf("《%s》在%s阶段失败: %s", project, phase, event.Payload),
			URL:   url,
			Tag:   event.ResourceID,
		}, true
	case eventbus.WorkflowStepCompleted:
		return nil, false
	default:
		return nil, false
	}
}
