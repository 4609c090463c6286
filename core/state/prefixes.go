package state

import (
	"encoding/binary"
	"encoding/hex"
)

var (
	referralCodePrefix   = []byte("referral/code/")
	referralAcctPrefix   = []byte("referral/acct/")
	referralPairPrefix   = []byte("referral/pair/")
	referralRecordPrefix = []byte("referral/record/")
	referralTiersKey     = []byte("referral/tiers")
	referralGlobalKey    = []byte("referral/global")

	mintLevelPrefix  = []byte("mint/level/")
	mintNextBoxIDKey = []byte("mint/nextbox")
	boxRecordPrefix  = []byte("box/record/")
	boxOpenPrefix    = []byte("box/open/")

	rewardPoolPrefix   = []byte("reward/pool/")
	rewardRandomPrefix = []byte("reward/random/")
	rewardOpenCountKey = []byte("reward/opencount")

	claimStatePrefix     = []byte("claim/state/")
	claimGlobalMintedKey = []byte("claim/minted")
	claimWindowKey       = []byte("claim/window")

	govAuthorityKey = []byte("gov/authority")
	govPendingKey   = []byte("gov/authority/pending")
)

func appendAddr(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+40)
	buf = append(buf, prefix...)
	return append(buf, hex.EncodeToString(addr[:])...)
}

func appendUint32(prefix []byte, v uint32) []byte {
	buf := make([]byte, len(prefix)+4)
	copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[len(prefix):], v)
	return buf
}

func appendUint64(prefix []byte, v uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], v)
	return buf
}

func referralCodeKey(code string) []byte {
	return append(append([]byte(nil), referralCodePrefix...), code...)
}

func referralAccountKey(addr [20]byte) []byte {
	return appendAddr(referralAcctPrefix, addr)
}

func referralPairKey(referrer, invitee [20]byte) []byte {
	buf := appendAddr(referralPairPrefix, referrer)
	buf = append(buf, '/')
	return append(buf, hex.EncodeToString(invitee[:])...)
}

// referralRecordKey is a raw (unhashed) key: records are range-scanned in
// sequence order, so the big-endian sequence number must stay visible in the
// key bytes.
func referralRecordKey(referrer [20]byte, seq uint64) []byte {
	buf := appendAddr(referralRecordPrefix, referrer)
	buf = append(buf, '/')
	return appendUint64(buf, seq)
}

func referralRecordScanPrefix(referrer [20]byte) []byte {
	buf := appendAddr(referralRecordPrefix, referrer)
	return append(buf, '/')
}

func mintLevelKey(level uint32) []byte {
	return appendUint32(mintLevelPrefix, level)
}

func boxRecordKey(id uint64) []byte {
	return appendUint64(boxRecordPrefix, id)
}

func boxOpenKey(id uint64) []byte {
	return appendUint64(boxOpenPrefix, id)
}

func rewardPoolKey(level uint32) []byte {
	return appendUint32(rewardPoolPrefix, level)
}

func rewardRandomPoolKey(level uint32) []byte {
	return appendUint32(rewardRandomPrefix, level)
}

func claimStateKey(addr [20]byte) []byte {
	return appendAddr(claimStatePrefix, addr)
}
