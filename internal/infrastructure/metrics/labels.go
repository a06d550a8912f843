package metrics

import "strconv"

func formatChain(chainID int64) string {
	if chainID == 0 {
		return ""
	}
	return strconv.FormatInt(chainID, 10)
}
