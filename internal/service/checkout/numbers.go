package checkout

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/speps/go-hashids/v2"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var tagEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Numbers produces human-readable order numbers and opaque payment references.
type Numbers struct {
	secret []byte
	refs   *hashids.HashID
	now    func() time.Time
}

func NewNumbers(secret, salt string) (*Numbers, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.Alphabet = referenceAlphabet
	hd.MinLength = 10
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("payment reference encoder: %w", err)
	}
	return &Numbers{secret: []byte(secret), refs: h, now: time.Now}, nil
}

// OrderNumber returns e.g. "ORD-7KQ2-9F3A": an HMAC tag over the owner and a fresh nonce,
// followed by the nonce prefix.
func (n *Numbers) OrderNumber(ownerKey string) string {
	nonce := uuid.NewString()
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(ownerKey + "|" + nonce))
	tag := tagEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("ORD-%s-%s", strings.ToUpper(tag[:4]), strings.ToUpper(nonce[:4]))
}

// PaymentReference is unique per call; a replaced order never reuses its predecessor's reference.
func (n *Numbers) PaymentReference() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("payment reference entropy: %w", err)
	}
	random := int64(binary.BigEndian.Uint32(buf[:]))
	ref, err := n.refs.EncodeInt64([]int64{n.now().UnixNano(), random})
	if err != nil {
		return "", fmt.Errorf("encode payment reference: %w", err)
	}
	return "PAY-" + ref, nil
}
