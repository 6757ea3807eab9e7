package strategy

// Speed is a qualitative latency bucket.
type Speed string

const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

// ResourceUsage is a qualitative memory/CPU bucket.
type ResourceUsage string

const (
	UsageLow    ResourceUsage = "low"
	UsageMedium ResourceUsage = "medium"
	UsageHigh   ResourceUsage = "high"
)

// Performance describes expected runtime characteristics of a
// strategy+model pair, independent of any run.
type Performance struct {
	// Accuracy is the expected accuracy in [0,1].
	Accuracy    float64
	Speed       Speed
	MemoryUsage ResourceUsage
	CPUUsage    ResourceUsage
}

// Requirements lists what a strategy+model pair needs to run.
type Requirements struct {
	// Models are the model artifacts the pair depends on.
	Models []string
	// MinRAMMB is the minimum RAM in megabytes.
	MinRAMMB int
	// SupportedLanguages lists ISO language codes the model handles.
	SupportedLanguages []string
	// NeedsNetwork is true when the pair may fetch model artifacts
	// over the network on first use.
	NeedsNetwork bool
}

// Metadata is the static description of a strategy+model pairing.
type Metadata struct {
	Name         string
	Type         Type
	Performance  Performance
	Requirements Requirements
}
