package novelguildv1

type GetVapidPublicKeyRequest struct{}

type GetVapidPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type RegisterPushSubscriptionRequest struct {
	// UserId limits workflow notifications to one owner. Empty receives all.
	UserId    string `json:"userId,omitempty"`
	Endpoint  string `json:"endpoint"`
	P256DhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

type RegisterPushSubscriptionResponse struct{}

type UnregisterPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

type UnregisterPushSubscriptionResponse struct{}

type SendTestNotificationRequest struct {
	UserId string `json:"userId,omitempty"`
}

type SendTestNotificationResponse struct {
	Delivered int32 `json:"delivered"`
}
