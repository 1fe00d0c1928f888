package variant

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
)

// SerializeFormat selects the eJSON dialect (spec §4.1 "option set
// enumerates plain-ejson / real-ejson, base64-byte-seq").
type SerializeFormat int

const (
	// FormatPlainEJSON renders numbers without a type suffix and byte
	// sequences as a quoted hex string — the default, round-trippable
	// dialect exercised by spec §8's serialize/parse identity property.
	FormatPlainEJSON SerializeFormat = iota
	// FormatRealEJSON always renders numbers with a decimal point,
	// preserving the real/integer distinction on reparse.
	FormatRealEJSON
)

// SerializeOptions configures Serialize.
type SerializeOptions struct {
	Format         SerializeFormat
	Base64ByteSeq  bool // render byte sequences as base64 instead of hex
	Indent         string
}

// Serialize writes v to w per opts. Fails only with an I/O error or an
// unrepresentable value (a dynamic variant, which has no eJSON form).
func Serialize(w io.Writer, v *Value, opts SerializeOptions) error {
	enc := &encoder{w: w, opts: opts}
	return enc.encode(v, 0)
}

type encoder struct {
	w    io.Writer
	opts SerializeOptions
}

func (e *encoder) writeIndent(depth int) error {
	if e.opts.Indent == "" {
		return nil
	}
	if _, err := e.w.Write([]byte("\n")); err != nil {
		return err
	}
	for i := 0; i < depth; i++ {
		if _, err := io.WriteString(e.w, e.opts.Indent); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encode(v *Value, depth int) error {
	switch v.kind {
	case KindNull:
		return e.writeString("null")
	case KindBool:
		if v.b {
			return e.writeString("true")
		}
		return e.writeString("false")
	case KindNumber:
		return e.writeString(e.formatNumber(v.n))
	case KindString:
		return e.writeString(strconv.Quote(v.s))
	case KindBytes:
		if e.opts.Base64ByteSeq {
			return e.writeString(strconv.Quote("b64:" + base64.StdEncoding.EncodeToString(v.by)))
		}
		return e.writeString(strconv.Quote(fmt.Sprintf("bx%x", v.by)))
	case KindArray, KindTuple:
		return e.encodeArray(v, depth)
	case KindObject:
		return e.encodeObject(v, depth)
	case KindSet:
		return e.encodeSet(v, depth)
	case KindNative:
		return e.writeString(strconv.Quote(fmt.Sprintf("<native:%T>", v.native.entity)))
	case KindDynamic:
		return fmt.Errorf("variant: dynamic values have no eJSON representation")
	default:
		return fmt.Errorf("variant: unknown kind %s", v.kind)
	}
}

func (e *encoder) formatNumber(n float64) string {
	if e.opts.Format == FormatRealEJSON {
		if n == float64(int64(n)) {
			return strconv.FormatFloat(n, 'f', 1, 64)
		}
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func (e *encoder) encodeArray(v *Value, depth int) error {
	if err := e.writeString("["); err != nil {
		return err
	}
	for i, m := range v.arr {
		if i > 0 {
			if err := e.writeString(","); err != nil {
				return err
			}
		}
		if err := e.writeIndent(depth + 1); err != nil {
			return err
		}
		if err := e.encode(m, depth+1); err != nil {
			return err
		}
	}
	if len(v.arr) > 0 {
		if err := e.writeIndent(depth); err != nil {
			return err
		}
	}
	return e.writeString("]")
}

func (e *encoder) encodeSet(v *Value, depth int) error {
	if err := e.writeString("["); err != nil {
		return err
	}
	for i, m := range v.set {
		if i > 0 {
			if err := e.writeString(","); err != nil {
				return err
			}
		}
		if err := e.writeIndent(depth + 1); err != nil {
			return err
		}
		if err := e.encode(m, depth+1); err != nil {
			return err
		}
	}
	if len(v.set) > 0 {
		if err := e.writeIndent(depth); err != nil {
			return err
		}
	}
	return e.writeString("]")
}

func (e *encoder) encodeObject(v *Value, depth int) error {
	if err := e.writeString("{"); err != nil {
		return err
	}
	for i, entry := range v.obj {
		if i > 0 {
			if err := e.writeString(","); err != nil {
				return err
			}
		}
		if err := e.writeIndent(depth + 1); err != nil {
			return err
		}
		if err := e.writeString(strconv.Quote(entry.key) + ":"); err != nil {
			return err
		}
		if e.opts.Indent != "" {
			if err := e.writeString(" "); err != nil {
				return err
			}
		}
		if err := e.encode(entry.val, depth+1); err != nil {
			return err
		}
	}
	if len(v.obj) > 0 {
		if err := e.writeIndent(depth); err != nil {
			return err
		}
	}
	return e.writeString("}")
}

func (e *encoder) writeString(s string) error {
	_, err := io.WriteString(e.w, s)
	return err
}
