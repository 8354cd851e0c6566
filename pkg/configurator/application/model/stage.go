package model

type BootstrapStage string

const (
	StageCheckArchiver           BootstrapStage = "CHECK_ARCHIVER"
	StageCheckInterpreter        BootstrapStage = "CHECK_INTERPRETER"
	StageCheckSupportTools       BootstrapStage = "CHECK_SUPPORT_TOOLS"
	StageCheckVCSClient          BootstrapStage = "CHECK_VCS_CLIENT"
	StageCheckRepositoryPresent  BootstrapStage = "CHECK_REPOSITORY_PRESENT"
	StageClone                   BootstrapStage = "CLONE"
	StageSync                    BootstrapStage = "SYNC"
	StageDiscoverReferences      BootstrapStage = "DISCOVER_REFERENCES"
	StageResolveCurrentRemote    BootstrapStage = "RESOLVE_CURRENT_REMOTE"
	StageFetchAndCheckoutCurrent BootstrapStage = "FETCH_AND_CHECKOUT_CURRENT"
	StageReady                   BootstrapStage = "READY"
	StageFailed                  BootstrapStage = "FAILED"
)

func (stage BootstrapStage) Label() string {
	switch stage {
	case StageCheckArchiver:
		return "Setting up archive extractor"
	case StageCheckInterpreter:
		return "Setting up Python interpreter"
	case StageCheckSupportTools:
		return "Setting up PlatformIO locally"
	case StageCheckVCSClient:
		return "Setting up git client locally"
	case StageCheckRepositoryPresent:
		return "Looking for local ExpressLRS repository"
	case StageClone:
		return "Cloning ExpressLRS from GitHub repository"
	case StageSync:
		return "Fetching latest ExpressLRS changes"
	case StageDiscoverReferences:
		return "Discovering ExpressLRS branches and tags"
	case StageResolveCurrentRemote:
		return "Resolving current ExpressLRS branch"
	case StageFetchAndCheckoutCurrent:
		return "Updating current ExpressLRS branch"
	case StageReady:
		return "ExpressLRS Configurator is ready"
	case StageFailed:
		return "ExpressLRS Configurator setup failed"
	default:
		return string(stage)
	}
}

// Tool is a prerequisite provisioned by the bootstrap pipeline.
type Tool string

const (
	ToolArchiver     Tool = "archiver"
	ToolInterpreter  Tool = "python"
	ToolSupportTools Tool = "platformio"
	ToolVCSClient    Tool = "git"
)
