package utils

// BinarySearch locates probe in a sorted slice using cmp. It returns the
// index of an equal element, or the bitwise complement of the index where
// probe would be inserted to keep the slice sorted. When duplicates are
// present, any one of the equal elements may be reported.
func BinarySearch[T any](items []T, probe T, cmp func(a, b T) int) int {
	lo, hi := 0, len(items)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		c := cmp(items[mid], probe)
		switch {
		case c == 0:
			return mid
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return ^lo
}

// BinarySearchBoundary behaves like BinarySearch, but when probe matches a
// run of equal elements it returns the index of the first occurrence if
// firstOccurrence is true, else the last. The complement convention for a
// missing probe is unchanged.
func BinarySearchBoundary[T any](items []T, probe T, cmp func(a, b T) int, firstOccurrence bool) int {
	lo, hi := 0, len(items)-1
	found := -1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		c := cmp(items[mid], probe)
		switch {
		case c == 0:
			found = mid
			if firstOccurrence {
				hi = mid - 1
			} else {
				lo = mid + 1
			}
		case c < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	if found >= 0 {
		return found
	}
	return ^lo
}
