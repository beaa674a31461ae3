package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/resolve"
)

type elementKind int

const (
	elementValue elementKind = iota
	elementString
	elementHandle
)

// elementTransfer is the ownership of the elements of a sequence moved with
// transfer t: a container transfer hands over the array only.
func elementTransfer(t model.Transfer) model.Transfer {
	if t == model.TransferFull {
		return model.TransferFull
	}
	return model.TransferNone
}

// array maps C arrays. Arrays with a length parameter or a fixed size and
// zero-terminated arrays become slices and vectors; the length parameter is
// dropped from the public signature by the callable mapping.
func (mp *Mapper) array(t *model.TypeRef, a Annotations, ffi string) (Descriptor, error) {
	info := t.Array
	if info.Kind != model.ArrayC {
		return Descriptor{}, unmappable(a.Path, "%s has no safe mapping", info.Kind)
	}
	if len(t.Elements) == 0 {
		return Descriptor{}, unmappable(a.Path, "array has no element type")
	}
	if !isPointerFFI(ffi) {
		return Descriptor{}, unmappable(a.Path, "fixed-size array passed by value")
	}
	sized := info.Length != model.NoIndex || info.FixedSize > 0
	if !sized && !info.ZeroTerminated {
		return Descriptor{}, unmappable(a.Path, "array has neither a length nor a terminator")
	}
	if a.Direction == model.DirInOut && !a.Return {
		return Descriptor{}, unmappable(a.Path, "inout arrays are not supported")
	}
	if a.CallerAllocates {
		return Descriptor{}, unmappable(a.Path, "caller-allocated arrays are not supported")
	}

	elemFFI := strings.TrimPrefix(strings.TrimPrefix(ffi, "*mut "), "*const ")
	et := elementTransfer(a.Transfer)
	ea := Annotations{Direction: a.Direction, Transfer: et, Return: a.Return, Path: a.Path}
	if !a.output() {
		ea.Direction = model.DirIn
	}
	kind, ed, h, err := mp.element(t.Elements[0], ea, elemFFI)
	if err != nil {
		return Descriptor{}, err
	}
	ed.FFI = elemFFI

	count := "@len"
	if info.Length == model.NoIndex && info.FixedSize > 0 {
		count = strconv.Itoa(info.FixedSize)
	}
	d := Descriptor{
		Nullable:        a.Nullable,
		ElementTransfer: et,
		Element:         &ed,
	}
	if a.output() {
		err = mp.outputArray(&d, kind, ed, h, a, info, count)
	} else {
		err = mp.inputArray(&d, kind, ed, a, info)
	}
	if err != nil {
		return Descriptor{}, unmappable(a.Path, "%v", err)
	}
	return d, nil
}

func (mp *Mapper) element(t *model.TypeRef, a Annotations, ffi string) (elementKind, Descriptor, *Handle, error) {
	if t.Array != nil {
		return 0, Descriptor{}, nil, unmappable(a.Path, "nested arrays are not supported")
	}
	if res := mp.rt.Final(t); res.Kind == resolve.KindFundamental && (res.Name == "utf8" || res.Name == "filename") {
		return elementString, Descriptor{Target: "String"}, nil, nil
	}
	d, err := mp.mapValue(t, a, ffi)
	if err != nil {
		return 0, Descriptor{}, nil, err
	}
	switch {
	case d.Passing == ByValue && d.ToNative == "" && d.FromNative == "" && !isPointerFFI(ffi):
		return elementValue, d, nil, nil
	case d.Passing == Owned || d.Passing == Borrowed:
		if e, ok := mp.rt.Entity(t); ok && isPointerFFI(ffi) {
			if h := mp.handle(e); h != nil && e.Kind.IsComposite() {
				d.Target = mp.safeName(e)
				return elementHandle, d, h, nil
			}
		}
	}
	return 0, Descriptor{}, nil, unmappable(a.Path, "arrays of %s are not supported", t)
}

func (mp *Mapper) inputArray(d *Descriptor, kind elementKind, ed Descriptor, a Annotations, info *model.ArrayInfo) error {
	if a.Transfer == model.TransferFull || a.Transfer == model.TransferContainer {
		return fmt.Errorf("arrays handed over to the callee are not supported")
	}
	d.Passing = Borrowed
	switch kind {
	case elementValue:
		if info.Length == model.NoIndex && info.FixedSize > 0 {
			d.Target = fmt.Sprintf("&[%s; %d]", ed.Target, info.FixedSize)
			d.ToNative = "$.as_ptr() as _"
			return nil
		}
		if info.Length == model.NoIndex {
			return fmt.Errorf("zero-terminated arrays of %s are not supported as input", ed.Target)
		}
		if a.Nullable {
			d.Target = "Option<&[" + ed.Target + "]>"
			d.ToNative = "$.map_or(std::ptr::null(), |s| s.as_ptr()) as _"
			d.Len = "$.map_or(0, |s| s.len())"
			return nil
		}
		d.Target = "&[" + ed.Target + "]"
		d.ToNative = "$.as_ptr() as _"
		d.Len = "$.len()"
	case elementString:
		if a.Nullable || info.FixedSize > 0 {
			return fmt.Errorf("optional or fixed-size string arrays are not supported as input")
		}
		d.Target = "&[&str]"
		d.Prepare = "runtime::to_cstring_array($)"
		d.ToNative = "$.as_ptr() as _"
		d.Len = "$.len()"
	case elementHandle:
		if a.Nullable || info.FixedSize > 0 {
			return fmt.Errorf("optional or fixed-size object arrays are not supported as input")
		}
		d.Target = "&[&" + ed.Target + "]"
		d.Prepare = "runtime::ptr_array($.iter().map(|v| v.as_ptr()))"
		d.ToNative = "$.as_ptr() as _"
		d.Len = "$.len()"
	}
	return nil
}

func (mp *Mapper) outputArray(d *Descriptor, kind elementKind, ed Descriptor, h *Handle, a Annotations, info *model.ArrayInfo, count string) error {
	zt := info.Length == model.NoIndex && info.FixedSize == 0
	var elem string
	switch a.Transfer {
	case model.TransferFull, model.TransferContainer:
		d.Passing = Owned
		switch kind {
		case elementValue:
			if zt {
				return fmt.Errorf("zero-terminated arrays of %s are not supported", ed.Target)
			}
			elem = ed.Target
			d.FromNative = "runtime::take_slice($ as *mut _, " + count + ")"
			d.Release = "runtime::g_free($ as *mut _)"
		case elementString:
			elem = "String"
			switch {
			case zt && a.Transfer == model.TransferFull:
				d.FromNative = "runtime::take_strv($ as *mut _)"
				d.Release = "runtime::g_strfreev($ as *mut _)"
			case zt:
				d.FromNative = "runtime::take_strv_container($ as *mut _)"
				d.Release = "runtime::g_free($ as *mut _)"
			case a.Transfer == model.TransferFull:
				d.FromNative = "runtime::take_string_array($ as *mut _, " + count + ")"
				d.Release = "runtime::free_string_array($ as *mut _, " + count + ")"
			default:
				d.FromNative = "runtime::take_string_array_container($ as *mut _, " + count + ")"
				d.Release = "runtime::g_free($ as *mut _)"
			}
		case elementHandle:
			elem = ed.Target
			if a.Transfer == model.TransferContainer && h.Ref == "" {
				return fmt.Errorf("elements of %s cannot be referenced", ed.Target)
			}
			switch {
			case a.Transfer == model.TransferFull && zt:
				d.FromNative = "runtime::take_ptr_vec($ as *mut _, |p| " + ed.Target + "::from_glib_full(p as _))"
				d.Release = "runtime::free_ptr_vec($ as *mut _, |p| " + expand(h.Release, "p") + ")"
			case a.Transfer == model.TransferFull:
				d.FromNative = "runtime::take_ptr_array($ as *mut _, " + count + ", |p| " + ed.Target + "::from_glib_full(p as _))"
				d.Release = "runtime::free_ptr_array($ as *mut _, " + count + ", |p| " + expand(h.Release, "p") + ")"
			case zt:
				d.FromNative = "runtime::take_ptr_vec_container($ as *mut _, |p| " + ed.Target + "::from_glib_none(p as _))"
				d.Release = "runtime::g_free($ as *mut _)"
			default:
				d.FromNative = "runtime::take_ptr_array_container($ as *mut _, " + count + ", |p| " + ed.Target + "::from_glib_none(p as _))"
				d.Release = "runtime::g_free($ as *mut _)"
			}
		}
	default:
		d.Passing = ByValue
		switch kind {
		case elementValue:
			if zt {
				return fmt.Errorf("zero-terminated arrays of %s are not supported", ed.Target)
			}
			elem = ed.Target
			d.FromNative = "runtime::copy_slice($ as *const _, " + count + ")"
		case elementString:
			elem = "String"
			if zt {
				d.FromNative = "runtime::copy_strv($ as *const _)"
			} else {
				d.FromNative = "runtime::copy_string_array($ as *const _, " + count + ")"
			}
		case elementHandle:
			elem = ed.Target
			if h.Ref == "" {
				return fmt.Errorf("elements of %s cannot be referenced", ed.Target)
			}
			if zt {
				d.FromNative = "runtime::copy_ptr_vec($ as *const _, |p| " + ed.Target + "::from_glib_none(p as _))"
			} else {
				d.FromNative = "runtime::copy_ptr_array($ as *const _, " + count + ", |p| " + ed.Target + "::from_glib_none(p as _))"
			}
		}
	}
	d.Target = "Vec<" + elem + ">"
	if a.Nullable {
		d.Target = "Option<" + d.Target + ">"
		d.FromNative = "(!$.is_null()).then(|| " + d.FromNative + ")"
	}
	return nil
}
