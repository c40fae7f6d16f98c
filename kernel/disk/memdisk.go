package disk

// MemDisk is a trivial SimpleDisk backed by plain memory instead of a real
// IDE/ATA controller. Register-level programming of an actual disk
// controller is an external collaborator outside this core's scope; MemDisk
// exists so BlockingDisk has something concrete to drive at boot and in
// demos without depending on real hardware.
type MemDisk struct {
	kind   Kind
	blocks [][BlockSize]byte
}

// NewMemDisk allocates an in-memory disk of the given kind with capacityBytes
// worth of storage, rounded up to a whole number of blocks.
func NewMemDisk(kind Kind, capacityBytes uint32) *MemDisk {
	nBlocks := (capacityBytes + BlockSize - 1) / BlockSize
	return &MemDisk{kind: kind, blocks: make([][BlockSize]byte, nBlocks)}
}

// IsReady always reports true: there is no polling delay to emulate for
// plain memory.
func (d *MemDisk) IsReady() bool { return true }

// Read copies block's contents into buf.
func (d *MemDisk) Read(block uint32, buf []byte) {
	copy(buf, d.blocks[block][:])
}

// Write copies buf's contents into block.
func (d *MemDisk) Write(block uint32, buf []byte) {
	copy(d.blocks[block][:], buf)
}
