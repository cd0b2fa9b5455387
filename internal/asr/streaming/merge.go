package streaming

// MergeTokens reconciles tokens decoded from a new window with the tokens
// already accumulated from previous windows, de-overlapping the join: try
// a contiguous suffix/prefix match first, then a longest-common-subsequence
// alignment restricted to the overlap region, then split at the midpoint
// of the overlap by timestamp. When there's no temporal overlap at all,
// merge(a, b) == a++b; merge(a, nil) == a.
func MergeTokens(accumulated, incoming []Token, overlapSeconds float64) []Token {
	if len(incoming) == 0 {
		return accumulated
	}
	if len(accumulated) == 0 {
		return append([]Token(nil), incoming...)
	}

	lastAccTime := accumulated[len(accumulated)-1].TimeSeconds
	if incoming[0].TimeSeconds-lastAccTime > overlapSeconds {
		// No temporal overlap at all: nothing to deduplicate.
		return append(append([]Token(nil), accumulated...), incoming...)
	}

	if cut, ok := contiguousOverlapCut(accumulated, incoming, overlapSeconds); ok {
		return append(append([]Token(nil), accumulated...), incoming[cut:]...)
	}
	if cut, ok := lcsOverlapCut(accumulated, incoming, overlapSeconds); ok {
		return append(append([]Token(nil), accumulated...), incoming[cut:]...)
	}

	mid := (lastAccTime + incoming[0].TimeSeconds) / 2
	cut := 0
	for cut < len(incoming) && incoming[cut].TimeSeconds < mid {
		cut++
	}
	return append(append([]Token(nil), accumulated...), incoming[cut:]...)
}

// contiguousOverlapCut finds the longest L such that the last L tokens of
// accumulated equal (by id, with timestamps within overlapSeconds of each
// other) the first L tokens of incoming. Requires at least two matching
// token pairs; fewer is too weak a signal to trust and falls back to
// lcsOverlapCut. Returns the prefix length of incoming to drop.
func contiguousOverlapCut(accumulated, incoming []Token, overlapSeconds float64) (int, bool) {
	maxL := len(accumulated)
	if len(incoming) < maxL {
		maxL = len(incoming)
	}
	for l := maxL; l >= 2; l-- {
		suffix := accumulated[len(accumulated)-l:]
		prefix := incoming[:l]
		if tokensMatch(suffix, prefix, overlapSeconds) {
			return l, true
		}
	}
	return 0, false
}

func tokensMatch(a, b []Token, overlapSeconds float64) bool {
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
		diff := a[i].TimeSeconds - b[i].TimeSeconds
		if diff < 0 {
			diff = -diff
		}
		if diff > overlapSeconds {
			return false
		}
	}
	return true
}

// lcsOverlapCut restricts both lists to their portion inside the overlap
// window, computes a longest common subsequence of token ids over that
// restricted range, and returns the index into incoming just past the last
// matched token (i.e. the point to resume appending from).
func lcsOverlapCut(accumulated, incoming []Token, overlapSeconds float64) (int, bool) {
	lastAccTime := accumulated[len(accumulated)-1].TimeSeconds
	firstIncTime := incoming[0].TimeSeconds

	var accTail []Token
	accTailOffset := len(accumulated)
	for i := len(accumulated) - 1; i >= 0; i-- {
		if lastAccTime-accumulated[i].TimeSeconds > overlapSeconds {
			break
		}
		accTailOffset = i
	}
	accTail = accumulated[accTailOffset:]

	var incHead []Token
	for i, tok := range incoming {
		if tok.TimeSeconds-firstIncTime > overlapSeconds {
			break
		}
		incHead = incoming[:i+1]
	}

	if len(accTail) == 0 || len(incHead) == 0 {
		return 0, false
	}

	// Classic LCS over ids, tracking the furthest index in incHead reached.
	n, m := len(accTail), len(incHead)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if accTail[i-1].ID == incHead[j-1].ID {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	if dp[n][m] == 0 {
		return 0, false
	}

	// Walk back to find the last matched position in incHead.
	i, j, lastJ := n, m, -1
	for i > 0 && j > 0 {
		switch {
		case accTail[i-1].ID == incHead[j-1].ID:
			if lastJ == -1 {
				lastJ = j - 1
			}
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	if lastJ == -1 {
		return 0, false
	}
	return lastJ + 1, true
}
