package domain

type RateLimit struct {
	CanSendMessage   bool   `json:"canSendMessage"`
	RemainingSeconds int    `json:"remainingSeconds"`
	IsPremium        bool   `json:"isPremium"`
	IsBanned         bool   `json:"isBanned"`
	Message          string `json:"message,omitempty"`
}
