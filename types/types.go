package types

import (
	"fmt"
	"time"
)

// Driver selects the serial library used to open the link.
type Driver string

const (
	DriverBugst   Driver = "bugst"
	DriverTarm    Driver = "tarm"
	DriverJacobsa Driver = "jacobsa"
	DriverMock    Driver = "mock"
)

type Parity string

const (
	ParityNone Parity = "none"
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// LinkConfig is fixed once a connection attempt starts. Reconfiguring
// replaces it wholesale.
type LinkConfig struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baudRate"`
	DataBits    int           `json:"dataBits"`
	Parity      Parity        `json:"parity"`
	StopBits    int           `json:"stopBits"`
	Delimiter   string        `json:"delimiter"`
	Timeout     time.Duration `json:"timeout"`
	Driver      Driver        `json:"driver"`
	ReadTimeout time.Duration `json:"readTimeout"`
}

type ScaleState int

const (
	Disconnected ScaleState = iota
	Connecting
	Connected
	Errored
)

func (s ScaleState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionState is the Link Manager's single source of truth about the scale.
type ConnectionState struct {
	State  ScaleState
	Reason string
}

func (c ConnectionState) String() string {
	if c.State == Errored && c.Reason != "" {
		return "error: " + c.Reason
	}
	return c.State.String()
}

// RawChunk is the diagnostic view of one read from the link.
type RawChunk struct {
	Timestamp time.Time `json:"timestamp"`
	Hex       string    `json:"hex"`
	ASCII     []int     `json:"ascii"`
	Text      string    `json:"text"`
	Length    int       `json:"length"`
	GapMs     *int64    `json:"gapMs"`
	Buffer    string    `json:"buffer"`
}

type FlushReason string

const (
	FlushDelimiter FlushReason = "delimiter"
	FlushTimeout   FlushReason = "timeout"
)

// RawFrame lives only for one broadcast tick.
type RawFrame struct {
	Timestamp     time.Time   `json:"timestamp"`
	Bytes         []byte      `json:"-"`
	Text          string      `json:"text"`
	Hex           string      `json:"hex"`
	Length        int         `json:"length"`
	SincePrevMs   *int64      `json:"sincePrevMs"`
	BufferAtFlush string      `json:"bufferAtFlush"`
	Reason        FlushReason `json:"reason"`
}

// DecodedReading is derived from exactly one RawFrame.
type DecodedReading struct {
	Timestamp time.Time `json:"timestamp"`
	Frame     string    `json:"frame"`
	Weight    *float64  `json:"weight"`
	RawValue  *float64  `json:"rawValue,omitempty"`
	Pattern   string    `json:"pattern,omitempty"`
	IsStable  bool      `json:"isStable"`
	Explicit  bool      `json:"explicitStable,omitempty"`
	RunCount  int       `json:"runCount"`
}

type EventType string

const (
	EventRawData          EventType = "rawData"
	EventWeightData       EventType = "weightData"
	EventMessageProcessed EventType = "messageProcessed"
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventError            EventType = "error"
)

// Event is one line of the server-push stream.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Port      string          `json:"port,omitempty"`
	Message   string          `json:"message,omitempty"`
	Chunk     *RawChunk       `json:"chunk,omitempty"`
	Frame     *RawFrame       `json:"frame,omitempty"`
	Reading   *DecodedReading `json:"reading,omitempty"`
}

type PortInfo struct {
	Path         string `json:"path"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	VendorID     string `json:"vendorId,omitempty"`
	ProductID    string `json:"productId,omitempty"`
	IsUSB        bool   `json:"isUsb"`
}

type Counters struct {
	Bytes          int64 `json:"bytes"`
	Chunks         int64 `json:"chunks"`
	Frames         int64 `json:"frames"`
	Decoded        int64 `json:"decoded"`
	DecodeFailures int64 `json:"decodeFailures"`
	StableReadings int64 `json:"stableReadings"`
}

type Status struct {
	Connected   bool     `json:"connected"`
	State       string   `json:"state"`
	Port        string   `json:"port"`
	BaudRate    int      `json:"baudRate"`
	MockMode    bool     `json:"mockMode"`
	LastError   string   `json:"lastError,omitempty"`
	Subscribers int      `json:"subscribers"`
	Counters    Counters `json:"counters"`
}

type CurrentWeight struct {
	Weight    *float64   `json:"weight"`
	IsStable  bool       `json:"isStable"`
	Timestamp *time.Time `json:"timestamp"`
}

// WeighingRecord is the tuple handed to the persistence collaborator.
type WeighingRecord struct {
	ReceiptID         string    `json:"receiptId"`
	SequenceNumber    int       `json:"sequenceNumber"`
	Weight            float64   `json:"weight"`
	JabaWeight        float64   `json:"jabaWeight"`
	ShrinkageDiscount float64   `json:"shrinkageDiscount"`
	OperatorID        string    `json:"operatorId"`
	Timestamp         time.Time `json:"timestamp"`
	Note              string    `json:"note,omitempty"`
}

type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Type    string `json:"type"` // component: "scale", "web", "system", ...
}
