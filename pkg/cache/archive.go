package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Archival eligibility and rent-pricing constants, carried over bit-exact
// from the original accounts-db rent/archival model (state_rent_expiry.rs).
const (
	DefaultLamportsPerByteYear uint64 = 3_480
	DefaultArchiveAfterDays    uint64 = 365
	EstimatedSlotsPerDay       uint64 = 216_000
	MinArchivalDataSize        int    = 128
	MinRevivalRentYears        uint64 = 2
)

// cold-storage record layout (spec §6), offsets documented for clarity only —
// encodeRecord/decodeRecord are the single source of truth.
const (
	recordHeaderLen = 8 + 32 + 1 + 8 // lamports + owner + executable + data_len
)

var (
	ErrRevivalDisabled       = errors.New("cache: revival disabled")
	ErrIntegrityCheckFailed  = errors.New("cache: integrity check failed")
	ErrMerkleProofFailed     = errors.New("cache: merkle proof failed")
	ErrInsufficientRentError = errors.New("cache: insufficient rent deposit")
)

// IntegrityCheckFailedError carries the expected and recomputed hashes for
// an ErrIntegrityCheckFailed, matching spec §4.C's
// IntegrityCheckFailed{expected, computed}.
type IntegrityCheckFailedError struct {
	Expected common.Hash
	Computed common.Hash
}

func (e *IntegrityCheckFailedError) Error() string {
	return fmt.Sprintf("cache: integrity check failed: expected %s, computed %s", e.Expected.Hex(), e.Computed.Hex())
}

func (e *IntegrityCheckFailedError) Unwrap() error { return ErrIntegrityCheckFailed }

// InsufficientRentDepositError carries the required/provided amounts for an
// ErrInsufficientRentError, matching spec §4.C's InsufficientRentDeposit{required, provided}.
type InsufficientRentDepositError struct {
	Required *RentAmount
	Provided *RentAmount
}

// RentAmount is a lamport quantity; a named type keeps the error message
// readable without importing math/big just for this.
type RentAmount uint64

func (e *InsufficientRentDepositError) Error() string {
	return fmt.Sprintf("cache: insufficient rent deposit: required %d, provided %d", *e.Required, *e.Provided)
}

func (e *InsufficientRentDepositError) Unwrap() error { return ErrInsufficientRentError }

// StorageError wraps a message describing a cold-storage I/O or layout
// failure (spec §4.C / §6's "truncated" case).
type StorageError struct{ Message string }

func (e *StorageError) Error() string { return "cache: storage error: " + e.Message }

// ArchiveConfig tunes archival eligibility and cold-storage behavior.
type ArchiveConfig struct {
	ArchiveAfterDays     uint64
	LamportsPerByteYear  uint64
	AllowRevival         bool
	ExemptSystemPrograms map[Owner]bool
	ColdStoragePath      string
}

// DefaultArchiveConfig returns the spec's documented defaults.
func DefaultArchiveConfig(basePath string) ArchiveConfig {
	return ArchiveConfig{
		ArchiveAfterDays:    DefaultArchiveAfterDays,
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		AllowRevival:        true,
		ColdStoragePath:     basePath,
	}
}

// ArchivedAccount is the immutable metadata record produced when an account
// is moved to cold storage.
type ArchivedAccount struct {
	PubKey            PubKey
	ArchiveSlot       uint64
	ArchiveEpoch      uint64
	AccountHash       common.Hash
	LamportsAtArchive uint64
	DataLen           uint64
	Owner             Owner
	Executable        bool
	ArchiveTimestamp  time.Time
	StoragePath       string
	MerkleProof       *MerkleProof
}

// Eligible reports whether an account may be archived, per spec §4.C:
// data_len >= MIN_ARCHIVAL_SIZE, lamports > 0, not exempt, and idle for at
// least archive_after_days worth of slots.
func Eligible(account Account, owner Owner, currentSlot, lastActiveSlot uint64, cfg ArchiveConfig) bool {
	if len(account.Data) < MinArchivalDataSize {
		return false
	}
	if account.Lamports == 0 {
		return false
	}
	if cfg.ExemptSystemPrograms != nil && cfg.ExemptSystemPrograms[owner] {
		return false
	}
	threshold := cfg.ArchiveAfterDays * EstimatedSlotsPerDay
	return currentSlot-lastActiveSlot >= threshold
}

// AccountHash computes SHA256(pubkey || lamports_le || owner || executable || data),
// the archival integrity digest from spec §6.
func AccountHash(pubkey PubKey, account Account) common.Hash {
	h := sha256.New()
	h.Write(pubkey.Bytes())

	var lamportsBuf [8]byte
	binary.LittleEndian.PutUint64(lamportsBuf[:], account.Lamports)
	h.Write(lamportsBuf[:])

	h.Write(account.Owner.Bytes())
	if account.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(account.Data)
	return common.BytesToHash(h.Sum(nil))
}

// encodeRecord serializes account into the bit-exact cold-storage layout
// from spec §6: [lamports:8 LE][owner:32][executable:1][data_len:8 LE][data:N].
func encodeRecord(account Account) []byte {
	buf := make([]byte, recordHeaderLen+len(account.Data))
	binary.LittleEndian.PutUint64(buf[0:8], account.Lamports)
	copy(buf[8:40], account.Owner.Bytes())
	if account.Executable {
		buf[40] = 1
	}
	binary.LittleEndian.PutUint64(buf[41:49], uint64(len(account.Data)))
	copy(buf[49:], account.Data)
	return buf
}

// decodeRecord parses the cold-storage layout back into an Account.
func decodeRecord(buf []byte) (Account, error) {
	if len(buf) < recordHeaderLen {
		return Account{}, &StorageError{Message: "truncated"}
	}
	dataLen := binary.LittleEndian.Uint64(buf[41:49])
	if uint64(len(buf)) < uint64(recordHeaderLen)+dataLen {
		return Account{}, &StorageError{Message: "truncated"}
	}
	var account Account
	account.Lamports = binary.LittleEndian.Uint64(buf[0:8])
	account.Owner = Owner(common.BytesToHash(buf[8:40]))
	account.Executable = buf[40] != 0
	account.Data = append([]byte(nil), buf[49:49+dataLen]...)
	return account, nil
}

// storagePath builds the two-level sharded path from spec §6:
// <base>/<hex(pubkey[0])>/<hex(pubkey[1])>/<pubkey>.bin.
func storagePath(base string, pubkey PubKey) string {
	b := pubkey.Bytes()
	return filepath.Join(base, fmt.Sprintf("%02x", b[0]), fmt.Sprintf("%02x", b[1]), pubkey.Hex()+".bin")
}

// Archive computes the account's integrity hash, writes it to cold storage
// at the spec's sharded path, and returns its metadata record. The hot
// cache entry, if any, is the caller's responsibility to remove.
func Archive(pubkey PubKey, account Account, slot, epoch uint64, cfg ArchiveConfig) (*ArchivedAccount, error) {
	hash := AccountHash(pubkey, account)
	path := storagePath(cfg.ColdStoragePath, pubkey)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	if err := os.WriteFile(path, encodeRecord(account), 0o644); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}

	return &ArchivedAccount{
		PubKey:            pubkey,
		ArchiveSlot:       slot,
		ArchiveEpoch:      epoch,
		AccountHash:       hash,
		LamportsAtArchive: account.Lamports,
		DataLen:           uint64(len(account.Data)),
		Owner:             account.Owner,
		Executable:        account.Executable,
		ArchiveTimestamp:  now(),
		StoragePath:       path,
	}, nil
}

// RequiredRentDeposit is the minimum lamports a reviver must post, per spec
// §4.C: data_len * lamports_per_byte_year * MIN_REVIVAL_RENT_YEARS.
func RequiredRentDeposit(dataLen uint64, lamportsPerByteYear uint64) uint64 {
	return dataLen * lamportsPerByteYear * MinRevivalRentYears
}

// Revive reads the archived record back from cold storage, verifies its
// integrity hash (and an attached Merkle proof, if any), validates the rent
// deposit, and returns the recovered account. It never mutates cfg or the
// archive index — callers fold a successful revival back into the hot
// cache themselves.
func Revive(archived *ArchivedAccount, rentDeposit uint64, proof *MerkleProof, merkleRoot common.Hash, cfg ArchiveConfig) (Account, error) {
	if !cfg.AllowRevival {
		return Account{}, ErrRevivalDisabled
	}

	required := RequiredRentDeposit(archived.DataLen, cfg.LamportsPerByteYear)
	if rentDeposit < required {
		req := RentAmount(required)
		prov := RentAmount(rentDeposit)
		return Account{}, &InsufficientRentDepositError{Required: &req, Provided: &prov}
	}

	raw, err := os.ReadFile(archived.StoragePath)
	if err != nil {
		return Account{}, &StorageError{Message: err.Error()}
	}
	account, err := decodeRecord(raw)
	if err != nil {
		return Account{}, err
	}

	recomputed := AccountHash(archived.PubKey, account)
	if recomputed != archived.AccountHash {
		return Account{}, &IntegrityCheckFailedError{Expected: archived.AccountHash, Computed: recomputed}
	}

	if proof != nil {
		if !VerifyProof(recomputed, *proof, merkleRoot) {
			return Account{}, ErrMerkleProofFailed
		}
	}

	return account, nil
}
