package irq

import "testing"

func TestExceptionDispatch(t *testing.T) {
	defer func() { exceptionHandlers[DivideByZero] = nil }()

	called := false
	HandleException(DivideByZero, func(f *Frame, r *Regs) {
		called = true
	})

	DispatchException(DivideByZero, &Frame{}, &Regs{})
	if !called {
		t.Fatal("expected registered exception handler to be invoked")
	}
}

func TestExceptionWithCodeDispatch(t *testing.T) {
	defer func() { exceptionHandlersWithCode[PageFaultException] = nil }()

	var gotCode uint32
	HandleExceptionWithCode(PageFaultException, func(errorCode uint32, f *Frame, r *Regs) {
		gotCode = errorCode
	})

	DispatchExceptionWithCode(PageFaultException, 0x2, &Frame{}, &Regs{})
	if gotCode != 0x2 {
		t.Fatalf("expected error code 0x2 to reach the handler; got %x", gotCode)
	}
}

func TestIRQDispatch(t *testing.T) {
	defer func() { irqHandlers[TimerIRQ] = nil }()

	called := false
	HandleIRQ(TimerIRQ, func(f *Frame, r *Regs) {
		called = true
	})

	DispatchIRQ(TimerIRQ, &Frame{}, &Regs{})
	if !called {
		t.Fatal("expected registered IRQ handler to be invoked")
	}
}

func TestDispatchWithoutHandlerIsNoop(t *testing.T) {
	DispatchException(ExceptionNum(1), &Frame{}, &Regs{})
	DispatchIRQ(IRQNum(1), &Frame{}, &Regs{})
}
