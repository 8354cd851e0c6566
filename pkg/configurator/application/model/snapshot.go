package model

type Snapshot struct {
	Branches      []string        `json:"branches"`
	Tags          []string        `json:"tags"`
	CurrentRemote *string         `json:"currentRemote"`
	Targets       []string        `json:"targets"`
	Operations    []OperationInfo `json:"operations"`
}
