package types

type CoordinatorStatus struct {
	Status        string `json:"status"`
	AppVersion    string `json:"appVersion"`
	MonitorStatus string `json:"monitorStatus"`
}
