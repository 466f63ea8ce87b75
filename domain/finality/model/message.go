package model

// Message is a consensus message exchanged between validators
type Message interface {
	MessageRound() uint64
	Command() MessageCommand
}

// MessageCommand identifies the type of a Message
type MessageCommand byte

const (
	// CmdProposal is the command of a Proposal message
	CmdProposal MessageCommand = iota
	// CmdVote is the command of a Vote message
	CmdVote
	// CmdTimeout is the command of a Timeout message
	CmdTimeout
	// CmdQuorumCertificate is the command of a QuorumCertificate message
	CmdQuorumCertificate
	// CmdTimeoutCertificate is the command of a TimeoutCertificate message
	CmdTimeoutCertificate
)

var messageCommandStrings = map[MessageCommand]string{
	CmdProposal:           "Proposal",
	CmdVote:               "Vote",
	CmdTimeout:            "Timeout",
	CmdQuorumCertificate:  "QuorumCertificate",
	CmdTimeoutCertificate: "TimeoutCertificate",
}

func (cmd MessageCommand) String() string {
	return messageCommandStrings[cmd]
}

// MessageRound returns the round of the message
func (p *Proposal) MessageRound() uint64 { return p.Round }

// Command returns the command of the message
func (p *Proposal) Command() MessageCommand { return CmdProposal }

// MessageRound returns the round of the message
func (v *Vote) MessageRound() uint64 { return v.Round }

// Command returns the command of the message
func (v *Vote) Command() MessageCommand { return CmdVote }

// MessageRound returns the round of the message
func (t *Timeout) MessageRound() uint64 { return t.Round }

// Command returns the command of the message
func (t *Timeout) Command() MessageCommand { return CmdTimeout }

// MessageRound returns the round of the message
func (qc *QuorumCertificate) MessageRound() uint64 { return qc.Round }

// Command returns the command of the message
func (qc *QuorumCertificate) Command() MessageCommand { return CmdQuorumCertificate }

// MessageRound returns the round of the message
func (tc *TimeoutCertificate) MessageRound() uint64 { return tc.Round }

// Command returns the command of the message
func (tc *TimeoutCertificate) Command() MessageCommand { return CmdTimeoutCertificate }

// Emitter sends a message to every other validator
type Emitter func(message Message)
