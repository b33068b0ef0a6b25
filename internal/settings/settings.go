package settings

const (
	CmdName = "ktally"

	// ProbeDir is where `make` drops the compiled BPF objects.
	ProbeDir = "output"

	SyscountProbeObj = "syscount.bpf.o"
	CritstatProbeObj = "critstat.bpf.o"
)
