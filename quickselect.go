package theta

// selectExcludingZeros returns the pivot-th smallest (1-based) non-zero value
// of arr, which holds exactly nonZeros non-zero values.  arr is not modified.
func selectExcludingZeros(arr []uint64, nonZeros, pivot int) uint64 {
	if pivot < 1 || pivot > nonZeros {
		panic("theta: selection pivot out of range")
	}
	tmp := make([]uint64, 0, nonZeros)
	for _, v := range arr {
		if v != 0 {
			tmp = append(tmp, v)
		}
	}
	return selectKth(tmp, pivot-1)
}

// selectKth rearranges arr so that arr[k] holds the value it would hold if arr
// were sorted and returns it.
func selectKth(arr []uint64, k int) uint64 {
	lo, hi := 0, len(arr)-1
	for hi > lo {
		j := partition(arr, lo, hi)
		switch {
		case j == k:
			return arr[k]
		case j > k:
			hi = j - 1
		default:
			lo = j + 1
		}
	}
	return arr[k]
}

// partition is the classic Hoare scheme around arr[lo].
func partition(arr []uint64, lo, hi int) int {
	i, j := lo, hi+1
	v := arr[lo]
	for {
		for i++; arr[i] < v; i++ {
			if i == hi {
				break
			}
		}
		for j--; v < arr[j]; j-- {
			if j == lo {
				break
			}
		}
		if i >= j {
			break
		}
		arr[i], arr[j] = arr[j], arr[i]
	}
	arr[lo], arr[j] = arr[j], arr[lo]
	return j
}
