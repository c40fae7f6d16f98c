package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// ReadCR0 returns the value stored in the CR0 (machine status) register.
func ReadCR0() uint32

// WriteCR0 stores a value into the CR0 register.
func WriteCR0(v uint32)

// ReadCR2 returns the value stored in the CR2 (page-fault linear address)
// register.
func ReadCR2() uint32

// ReadCR3 returns the value stored in the CR3 (page directory base) register.
func ReadCR3() uint32

// WriteCR3 stores a value into the CR3 register, reloading the MMU with a
// new page directory and flushing the entire TLB as a side effect.
func WriteCR3(v uint32)

// Outb writes a byte to the given I/O port.
func Outb(port uint16, v uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// Outw writes a 16-bit word to the given I/O port.
func Outw(port uint16, v uint16)

// Inw reads a 16-bit word from the given I/O port.
func Inw(port uint16) uint16
