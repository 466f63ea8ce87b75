package wire

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

// EncodeLedgerInfo serializes a checkpoint ledger entry
func EncodeLedgerInfo(info *model.LedgerInfo) []byte {
	var b []byte
	b = appendVarintField(b, fieldSequence, info.Sequence)
	b = appendCandidate(b, info.Candidate)
	return appendBytesField(b, fieldCertificate, EncodeQuorumCertificate(info.Certificate))
}

// DecodeLedgerInfo deserializes a checkpoint ledger entry
func DecodeLedgerInfo(b []byte) (*model.LedgerInfo, error) {
	info := &model.LedgerInfo{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var value []byte
		switch r.num {
		case fieldSequence:
			info.Sequence, err = r.varint()
		case fieldCandidate:
			value, err = r.bytes()
			if err == nil {
				info.Candidate, err = decodeCandidate(value)
			}
		case fieldCertificate:
			value, err = r.bytes()
			if err == nil {
				info.Certificate, err = DecodeQuorumCertificate(value)
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	if info.Candidate == nil || info.Certificate == nil {
		return nil, errors.New("ledger entry is missing its candidate or certificate")
	}
	return info, nil
}

// EncodeSafetyData serializes safety data
func EncodeSafetyData(data *model.SafetyData) []byte {
	var b []byte
	b = appendVarintField(b, fieldRound, data.LastVotedRound)
	if data.LastVotedCandidate != nil {
		b = appendCandidate(b, data.LastVotedCandidate)
	}
	return appendVarintField(b, fieldLastTimeout, data.LastTimeoutRound)
}

// DecodeSafetyData deserializes safety data
func DecodeSafetyData(b []byte) (*model.SafetyData, error) {
	data := &model.SafetyData{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch r.num {
		case fieldRound:
			data.LastVotedRound, err = r.varint()
		case fieldCandidate:
			var value []byte
			value, err = r.bytes()
			if err == nil {
				data.LastVotedCandidate, err = decodeCandidate(value)
			}
		case fieldLastTimeout:
			data.LastTimeoutRound, err = r.varint()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// EncodeEquivocationEvidence serializes equivocation evidence
func EncodeEquivocationEvidence(evidence *model.EquivocationEvidence) []byte {
	var b []byte
	b = appendVarintField(b, fieldRound, evidence.Round)
	b = appendBytesField(b, fieldSigner, evidence.Voter[:])
	b = appendBytesField(b, fieldFirst, encodeVote(evidence.First))
	return appendBytesField(b, fieldSecond, encodeVote(evidence.Second))
}

// DecodeEquivocationEvidence deserializes equivocation evidence
func DecodeEquivocationEvidence(b []byte) (*model.EquivocationEvidence, error) {
	evidence := &model.EquivocationEvidence{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var value []byte
		switch r.num {
		case fieldRound:
			evidence.Round, err = r.varint()
		case fieldSigner:
			evidence.Voter, err = r.publicKey()
		case fieldFirst:
			value, err = r.bytes()
			if err == nil {
				evidence.First, err = decodeVote(value)
			}
		case fieldSecond:
			value, err = r.bytes()
			if err == nil {
				evidence.Second, err = decodeVote(value)
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	if evidence.First == nil || evidence.Second == nil {
		return nil, errors.New("equivocation evidence is missing a vote")
	}
	return evidence, nil
}
