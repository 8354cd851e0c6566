package model

import "time"

type RepositorySettings struct {
	URL    string
	Dir    string
	Remote string
	// ProjectDir is the firmware build project inside the repository.
	ProjectDir string
}

type Configurator struct {
	WorkDir  string
	ToolsDir string
	SetupDir string
	LogFile  string
	Listen   string
	// AllowedOrigins are browser origins permitted besides local pages.
	AllowedOrigins   []string
	Repository       RepositorySettings
	OperationTimeout time.Duration
}
