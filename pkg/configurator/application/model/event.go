package model

import (
	"time"

	"github.com/google/uuid"
)

type EventPhase string

const (
	PhaseStarted EventPhase = "started"
	PhaseSuccess EventPhase = "success"
	PhaseFailed  EventPhase = "failed"
	PhaseBusy    EventPhase = "busy"
)

const StageStartedEvent = "stage-started"

type Event struct {
	ID            uuid.UUID     `json:"id"`
	Name          string        `json:"name"`
	Kind          OperationKind `json:"kind,omitempty"`
	Phase         EventPhase    `json:"phase,omitempty"`
	OperationID   *uuid.UUID    `json:"operationId,omitempty"`
	Target        string        `json:"target,omitempty"`
	Stage         string        `json:"stage,omitempty"`
	Branches      []string      `json:"branches,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	CurrentRemote *string       `json:"currentRemote,omitempty"`
	Targets       []string      `json:"targets,omitempty"`
	Error         string        `json:"error,omitempty"`
	Time          time.Time     `json:"time"`
}

func NewOperationEvent(kind OperationKind, phase EventPhase) Event {
	return Event{
		ID:    uuid.New(),
		Name:  kind.EventPrefix() + "-" + string(phase),
		Kind:  kind,
		Phase: phase,
		Time:  time.Now(),
	}
}

func NewStageEvent(kind OperationKind, stage BootstrapStage) Event {
	return Event{
		ID:    uuid.New(),
		Name:  StageStartedEvent,
		Kind:  kind,
		Stage: stage.Label(),
		Time:  time.Now(),
	}
}

func (e Event) Terminal() bool {
	return e.Phase == PhaseSuccess || e.Phase == PhaseFailed
}
