package keyboard

// Encode returns the press and release scancodes that type c on a keyboard
// with caps lock off. Control characters map to their key combination:
// backspace and DEL to the backspace key, form feed to Ctrl+L and carriage
// return to enter. Characters without a key yield nil.
func Encode(c byte) []byte {
	switch c {
	case '\b', 0x7F:
		return tap(Backspace)
	case '\r':
		return tap(Enter)
	case 0x0C:
		return hold(Ctrl, clearKey)
	case 0x1B:
		return tap(Escape)
	}

	for code := range keymap {
		switch c {
		case 0:
		case keymap[code][0]:
			return tap(byte(code))
		case keymap[code][1]:
			return hold(LeftShift, byte(code))
		}
	}

	return nil
}

// SwitchSequence returns the scancodes for Alt+F1..F3 that select terminal
// n.
func SwitchSequence(n int) []byte {
	if n < 0 || n > F3-F1 {
		return nil
	}
	return hold(Alt, byte(F1+n))
}

func tap(code byte) []byte {
	return []byte{code, code | releaseBit}
}

func hold(modifier, code byte) []byte {
	return []byte{modifier, code, code | releaseBit, modifier | releaseBit}
}
