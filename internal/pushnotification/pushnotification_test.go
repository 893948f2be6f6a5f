package pushnotification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/internal/config"
	"github.com/kazz187/novelguild/internal/eventbus"
	"github.com/kazz187/novelguild/internal/pushsubscription"
	"github.com/kazz187/novelguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/storage"
)

type delivery struct {
	endpoint string
	payload  NotificationPayload
	options  webpush.Options
}

type fakePush struct {
	mu         sync.Mutex
	deliveries []delivery
	status     map[string]int
	sent       chan struct{}
}

func newFakePush() *fakePush {
	return &fakePush{status: map[string]int{}, sent: make(chan struct{}, 16)}
}

func (f *fakePush) send(_ context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	var p NotificationPayload
	if err := json.Unmarshal(message, &p); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.deliveries = append(f.deliveries, delivery{endpoint: s.Endpoint, payload: p, options: *options})
	status, ok := f.status[s.Endpoint]
	f.mu.Unlock()
	if !ok {
		status = http.StatusCreated
	}
	select {
	case f.sent <- struct{}{}:
	default:
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (f *fakePush) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, d := range f.deliveries {
		out = append(out, d.endpoint)
	}
	return out
}

var testVAPID = &config.VAPIDEnv{PublicKey: "pub", PrivateKey: "priv", Contact: "mailto:ops@example.com"}

func newSender(t *testing.T, vapid *config.VAPIDEnv) (*Sender, pushsubscription.Repository, *fakePush) {
	t.Helper()
	repo := repositoryimpl.NewYAMLRepository(storage.NewMemoryStorage())
	fake := newFakePush()
	s := NewSender(vapid, repo)
	s.send = fake.send
	return s, repo, fake
}

func seed(t *testing.T, repo pushsubscription.Repository, id, userID string) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &pushsubscription.Subscription{
		ID:        id,
		UserID:    userID,
		Endpoint:  "https://push.example/" + id,
		P256dhKey: "p-" + id,
		AuthKey:   "a-" + id,
	}))
}

func TestSenderSend(t *testing.T) {
	ctx := context.Background()
	s, repo, fake := newSender(t, testVAPID)
	seed(t, repo, "a", "alice")
	seed(t, repo, "b", "bob")
	seed(t, repo, "c", "")

	n := s.Send(ctx, "alice", &NotificationPayload{Title: "t", Body: "b"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"https://push.example/a", "https://push.example/c"}, fake.endpoints())

	d := fake.deliveries[0]
	assert.Equal(t, "t", d.payload.Title)
	assert.Equal(t, "pub", d.options.VAPIDPublicKey)
	assert.Equal(t, "mailto:ops@example.com", d.options.Subscriber)
	assert.Equal(t, notificationTTL, d.options.TTL)
}

func TestSenderRemovesExpiredSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, repo, fake := newSender(t, testVAPID)
	seed(t, repo, "a", "")
	seed(t, repo, "b", "")
	fake.status["https://push.example/a"] = http.StatusGone
	fake.status["https://push.example/b"] = http.StatusTooManyRequests

	assert.Equal(t, 0, s.Send(ctx, "", &NotificationPayload{Title: "t"}))

	_, err := repo.Get(ctx, "a")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	_, err = repo.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestSenderWithoutVAPID(t *testing.T) {
	s, repo, fake := newSender(t, &config.VAPIDEnv{})
	seed(t, repo, "a", "")

	assert.False(t, s.Configured())
	assert.Equal(t, 0, s.Send(context.Background(), "", &NotificationPayload{Title: "t"}))
	assert.Empty(t, fake.endpoints())
}

func TestNotificationFor(t *testing.T) {
	meta := map[string]string{"user_id": "u", "project_name": "星海", "phase": "writing"}

	p, ok := notificationFor(&eventbus.Event{Type: eventbus.WorkflowCompleted, ResourceID: "w1", Metadata: meta})
	require.True(t, ok)
	assert.Equal(t, "创作完成", p.Title)
	assert.Contains(t, p.Body, "《星海》")
	assert.Equal(t, "/workflows/w1", p.URL)
	assert.Equal(t, "w1", p.Tag)

	p, ok = notificationFor(&eventbus.Event{Type: eventbus.WorkflowFailed, ResourceID: "w1", Payload: "timeout", Metadata: meta})
	require.True(t, ok)
	assert.Equal(t, "创作中断", p.Title)
	assert.Contains(t, p.Body, "内容创作")
	assert.Contains(t, p.Body, "timeout")

	_, ok = notificationFor(&eventbus.Event{Type: eventbus.WorkflowStepCompleted, ResourceID: "w1", Metadata: meta})
	assert.False(t, ok)
}

func TestDispatcher(t *testing.T) {
	s, repo, fake := newSender(t, testVAPID)
	seed(t, repo, "a", "alice")
	seed(t, repo, "b", "bob")

	bus := eventbus.New()
	d := NewDispatcher(bus, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	// Start subscribes asynchronously; publish until the notification lands.
	require.Eventually(t, func() bool {
		bus.PublishNew(eventbus.WorkflowCompleted, "w1", "", map[string]string{"user_id": "bob", "project_name": "p"})
		select {
		case <-fake.sent:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 20*time.Millisecond)

	cancel()
	<-done
	for _, e := range fake.endpoints() {
		assert.Equal(t, "https://push.example/b", e)
	}
}

func TestServer(t *testing.T) {
	ctx := context.Background()
	sender, repo, fake := newSender(t, testVAPID)
	srv := NewServer(testVAPID, repo, sender)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return at }

	key, err := srv.GetVapidPublicKey(ctx, connect.NewRequest(&novelguildv1.GetVapidPublicKeyRequest{}))
	require.NoError(t, err)
	assert.Equal(t, "pub", key.Msg.PublicKey)

	register := func(auth string) error {
		_, err := srv.RegisterPushSubscription(ctx, connect.NewRequest(&novelguildv1.RegisterPushSubscriptionRequest{
			UserId:    "alice",
			Endpoint:  "https://push.example/x",
			P256DhKey: "p",
			AuthKey:   auth,
		}))
		return err
	}
	require.NoError(t, register("first"))
	require.NoError(t, register("second"))

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "second", subs[0].AuthKey)
	assert.Equal(t, "alice", subs[0].UserID)
	assert.Equal(t, at, subs[0].CreatedAt)

	res, err := srv.SendTestNotification(ctx, connect.NewRequest(&novelguildv1.SendTestNotificationRequest{UserId: "alice"}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.Msg.Delivered)
	assert.Len(t, fake.endpoints(), 1)

	_, err = srv.UnregisterPushSubscription(ctx, connect.NewRequest(&novelguildv1.UnregisterPushSubscriptionRequest{Endpoint: "https://push.example/x"}))
	require.NoError(t, err)
	subs, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestServerValidation(t *testing.T) {
	ctx := context.Background()
	sender, repo, _ := newSender(t, &config.VAPIDEnv{})
	srv := NewServer(&config.VAPIDEnv{}, repo, sender)

	_, err := srv.GetVapidPublicKey(ctx, connect.NewRequest(&novelguildv1.GetVapidPublicKeyRequest{}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	for _, req := range []*novelguildv1.RegisterPushSubscriptionRequest{
		{P256DhKey: "p", AuthKey: "a"},
		{Endpoint: "e", AuthKey: "a"},
		{Endpoint: "e", P256DhKey: "p"},
	} {
		_, err := srv.RegisterPushSubscription(ctx, connect.NewRequest(req))
		assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	}

	_, err = srv.UnregisterPushSubscription(ctx, connect.NewRequest(&novelguildv1.UnregisterPushSubscriptionRequest{}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = srv.UnregisterPushSubscription(ctx, connect.NewRequest(&novelguildv1.UnregisterPushSubscriptionRequest{Endpoint: "missing"}))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
