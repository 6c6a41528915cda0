package client

// PacketRecord is one row of the per-snapshot log.
type PacketRecord struct {
	RecvTimeMS           uint64
	SnapshotID           uint32
	Seq                  uint32
	ServerTSMS           uint64
	LatencyMS            float64
	JitterMS             float64
	InterarrivalJitterMS float64
	RedundancyUsed       int
}

// DiagnosticsRecord is one periodic summary row.
type DiagnosticsRecord struct {
	TimeMS          uint64
	PacketsReceived uint64
	Duplicates      uint64
	DuplicateRate   float64
	SequenceGaps    uint64
}

type PacketLogger interface {
	WritePacket(PacketRecord) error
}

type DiagnosticsLogger interface {
	WriteDiagnostics(DiagnosticsRecord) error
}

// Stats is a point-in-time copy of the reception counters.
type Stats struct {
	PacketsReceived uint64
	Duplicates      uint64
	SequenceGaps    uint64
	RedundancyUsed  uint64
	Dropped         uint64
	ClaimsSent      uint64
	DuplicateRate   float64
}
