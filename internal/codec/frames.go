// Package codec implements the Wire Codec (spec.md §4.4): the message
// taxonomy exchanged on the streaming channel, and both a compact binary
// encoding and a textual (JSON) fallback, chosen per-connection by
// internal/web based on the first inbound message's framing.
package codec

// MsgType self-describes a Frame's wire tag (spec.md §4.4).
type MsgType uint8

const (
	MsgStartTest MsgType = iota
	MsgPing
	MsgPong
	MsgBeginUpload
	MsgEndUpload
	MsgProgress
	MsgResults
	MsgError
	MsgWarning
	MsgData // bulk transfer chunk; not an application-level protocol message
	// (spec.md §4.4 lists the protocol's messages, not the bulk-transfer
	// payload itself) but still framed with a tag byte so the codec stays
	// self-describing end to end rather than relying on side-band framing.
)

func (t MsgType) String() string {
	switch t {
	case MsgStartTest:
		return "StartTest"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgBeginUpload:
		return "BeginUpload"
	case MsgEndUpload:
		return "EndUpload"
	case MsgProgress:
		return "Progress"
	case MsgResults:
		return "Results"
	case MsgError:
		return "Error"
	case MsgWarning:
		return "Warning"
	case MsgData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Frame is the tagged-union contract every message type satisfies.
type Frame interface {
	Type() MsgType
}

// StartTestFrame is sent client -> server to begin a test.
type StartTestFrame struct {
	DurationMs      uint32
	ChunkSize       uint32
	ParallelStreams uint8
	AIInsights      bool
	Binary          bool
}

func (StartTestFrame) Type() MsgType { return MsgStartTest }

// PingFrame/PongFrame carry the Latency Prober's side-channel probes.
type PingFrame struct {
	Token   uint32
	TSendMs uint64
}

func (PingFrame) Type() MsgType { return MsgPing }

type PongFrame struct {
	Token   uint32
	TEchoMs uint64
}

func (PongFrame) Type() MsgType { return MsgPong }

// BeginUploadFrame/EndUploadFrame bracket the upload stage.
type BeginUploadFrame struct {
	BytesGoal  uint64
	DeadlineMs uint64
}

func (BeginUploadFrame) Type() MsgType { return MsgBeginUpload }

type EndUploadFrame struct{}

func (EndUploadFrame) Type() MsgType { return MsgEndUpload }

// ProgressFrame is emitted ~10Hz during bulk stages (spec.md §4.1, §4.4).
// SpeedMbpsX10 and LatencyMsX10 are fixed-point (value * 10); HasLatency
// disambiguates "no sample yet" from a genuine zero.
type ProgressFrame struct {
	Stage        uint8
	Pct          uint8
	SpeedMbpsX10 uint16
	HasLatency   bool
	LatencyMsX10 uint16
}

func (ProgressFrame) Type() MsgType { return MsgProgress }

// ResultsFrame carries the CompactResult, sent once on success.
type ResultsFrame struct {
	Result CompactResult
}

func (ResultsFrame) Type() MsgType { return MsgResults }

// ErrorFrame is terminal on failure (spec.md §7).
type ErrorFrame struct {
	Kind    string
	Message string
}

func (ErrorFrame) Type() MsgType { return MsgError }

// WarningFrame is non-terminal (spec.md §7, ProbeDegraded).
type WarningFrame struct {
	Kind    string
	Message string
}

func (WarningFrame) Type() MsgType { return MsgWarning }

// DataFrame is one fixed-size bulk-transfer chunk (spec.md §4.3).
type DataFrame struct {
	Payload []byte
}

func (DataFrame) Type() MsgType { return MsgData }

// Grade is the small wire enumeration backing bufferbloat and use-case
// grades (spec.md §4.4 "grades carried as small enumerations").
type Grade uint8

const (
	GradeUnknown Grade = iota
	GradeF
	GradeD
	GradeC
	GradeB
	GradeA
	GradeAPlus
	GradeVeryPoor
	GradePoor
	GradeFair
	GradeGood
	GradeExcellent
)

var bufferbloatGradeToWire = map[string]Grade{
	"Unknown": GradeUnknown,
	"F":       GradeF,
	"D":       GradeD,
	"C":       GradeC,
	"B":       GradeB,
	"A":       GradeA,
	"A+":      GradeAPlus,
}

var wireToBufferbloatGrade = reverseGrades(bufferbloatGradeToWire)

var useCaseGradeToWire = map[string]Grade{
	"Very Poor": GradeVeryPoor,
	"Poor":      GradePoor,
	"Fair":      GradeFair,
	"Good":      GradeGood,
	"Excellent": GradeExcellent,
}

var wireToUseCaseGrade = reverseGrades(useCaseGradeToWire)

func reverseGrades(m map[string]Grade) map[Grade]string {
	out := make(map[Grade]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// BufferbloatGradeToWire/WireToBufferbloatGrade and their use-case
// counterparts translate between the textual grades the engine computes
// and the compact wire enumeration.
func BufferbloatGradeToWire(s string) Grade { return bufferbloatGradeToWire[s] }
func WireToBufferbloatGrade(g Grade) string { return wireToBufferbloatGrade[g] }
func UseCaseGradeToWire(s string) Grade     { return useCaseGradeToWire[s] }
func WireToUseCaseGrade(g Grade) string     { return wireToUseCaseGrade[g] }

// CompactResult is the positional, narrowly-typed wire representation of a
// completed test (spec.md §3, §4.4). It omits the test/server id: the
// client already knows which connection it is on, so repeating them would
// only cost bytes against the size contract.
type CompactResult struct {
	DownMbpsX10      uint32
	UpMbpsX10        uint32
	LatencyMsX10     uint16
	JitterMsX10      uint16
	DurationSecX10   uint16
	TimestampUnix    int64

	HasLoadedLatency bool
	IdleAvgMsX10     uint16
	DownloadAvgMsX10 uint16
	UploadAvgMsX10   uint16
	IdleRPM          uint16
	DownloadRPM      uint16
	UploadRPM        uint16
	BufferbloatGrade Grade

	HasScores         bool
	GamingScoreX10    uint16
	GamingGrade       Grade
	StreamingScoreX10 uint16
	StreamingGrade    Grade
	VideoScoreX10     uint16
	VideoGrade        Grade
	BrowsingScoreX10  uint16
	BrowsingGrade     Grade
	OverallScoreX10   uint16
	OverallGrade      Grade
	PacketLossAssumed bool

	HasAIInsights bool
	AIInsights    string

	Notes []string
}

// undefinedX10 marks an optional fixed-point field as "not present" when
// HasLoadedLatency/HasScores is false; kept as a named constant so callers
// don't need to remember the sentinel value.
const undefinedX10 = 0
