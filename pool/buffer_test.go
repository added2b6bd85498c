package pool

import "testing"

func TestBufferAppendRetrieve(t *testing.T) {
	b := NewBuffer()
	if b.PrependableBytes() != prependSize {
		t.Fatalf("expected prepend %d, got %d", prependSize, b.PrependableBytes())
	}
	b.AppendString("hello")
	if b.ReadableBytes() != 5 {
		t.Fatalf("expected 5 readable, got %d", b.ReadableBytes())
	}
	if string(b.Peek()) != "hello" {
		t.Fatalf("unexpected peek: %q", b.Peek())
	}
	b.Retrieve(2)
	if string(b.Peek()) != "llo" {
		t.Fatalf("unexpected peek after retrieve: %q", b.Peek())
	}
}

func TestBufferRetrieveAllInvariant(t *testing.T) {
	b := NewBuffer()
	b.AppendString("some bytes here")
	b.RetrieveAll()
	if b.ReadableBytes() != 0 {
		t.Fatalf("expected 0 readable after RetrieveAll, got %d", b.ReadableBytes())
	}
	if b.PrependableBytes() != prependSize {
		t.Fatalf("expected prependable %d after RetrieveAll, got %d", prependSize, b.PrependableBytes())
	}
}

func TestBufferGrowsWithoutShrinking(t *testing.T) {
	b := NewBuffer()
	initialCap := len(b.buf)
	big := make([]byte, initialCap*4)
	b.Append(big)
	if len(b.buf) <= initialCap {
		t.Fatalf("expected buffer to grow beyond %d, got %d", initialCap, len(b.buf))
	}
	grownCap := len(b.buf)
	b.RetrieveAll()
	if len(b.buf) < grownCap {
		t.Fatalf("buffer must never shrink: was %d, now %d", grownCap, len(b.buf))
	}
}

func TestBufferCompactsBeforeGrowing(t *testing.T) {
	b := NewBuffer()
	b.AppendString("0123456789")
	b.AppendString("0123456789")
	b.Retrieve(10) // leaves 10 readable bytes, but frees the first 10
	capBefore := len(b.buf)

	fits := b.WritableBytes() + b.PrependableBytes() - prependSize
	b.Append(make([]byte, fits))
	if len(b.buf) != capBefore {
		t.Fatalf("expected compaction to avoid growth: before=%d after=%d", capBefore, len(b.buf))
	}
	if b.readerIndex != prependSize {
		t.Fatalf("expected compaction to reset readerIndex to %d, got %d", prependSize, b.readerIndex)
	}
}
