package plant

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes every cohort and pool value as little-endian float64
// bits, so any change in any tracked quantity changes the digest.
func (p *Plant) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(p.clock.Day()))
	p.digestLeaf(h, &tmp)
	p.digestOrgans(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (p *Plant) digestLeaf(h hashWriter, tmp *[8]byte) {
	s := p.leaf.State()
	digestWriteString(h, tmp, p.leaf.Name())
	digestWriteI64(h, tmp, int64(len(s.Leaves)))
	for _, leaf := range s.Leaves {
		digestWriteF64(h, tmp, leaf.Age)
		digestWriteF64(h, tmp, leaf.Area)
		digestWriteF64(h, tmp, leaf.AreaDead)
		digestWriteBiomass(h, tmp, leaf.Live)
		digestWriteBiomass(h, tmp, leaf.Dead)
	}
	digestWriteBiomass(h, tmp, s.Live)
	digestWriteBiomass(h, tmp, s.Dead)
	digestWriteBiomass(h, tmp, s.Detached)
	digestWriteBiomass(h, tmp, s.Removed)
}

func (p *Plant) digestOrgans(h hashWriter, tmp *[8]byte) {
	digestWriteI64(h, tmp, int64(len(p.organs)))
	for _, o := range p.organs {
		s := o.State()
		digestWriteString(h, tmp, s.Name)
		digestWriteBiomass(h, tmp, s.Live)
		digestWriteBiomass(h, tmp, s.Dead)
		digestWriteBiomass(h, tmp, s.Allocated)
		digestWriteBiomass(h, tmp, s.Senesced)
		digestWriteBiomass(h, tmp, s.Detached)
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteBiomass(h hashWriter, tmp *[8]byte, b biomass.Biomass) {
	for _, v := range b.Components() {
		digestWriteF64(h, tmp, v)
	}
}
