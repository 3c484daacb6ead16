package domain

type ConnStatus string

const (
	ConnDisconnected ConnStatus = "DISCONNECTED"
	ConnConnecting   ConnStatus = "CONNECTING"
	ConnConnected    ConnStatus = "CONNECTED"
	ConnReconnecting ConnStatus = "RECONNECTING"
	ConnError        ConnStatus = "ERROR"
)
