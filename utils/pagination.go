package utils

const (
	pageSizeDefault = 20
	pageSizeMax     = 100
)

// GetPaginationParams resolves optional offset/limit query values into
// concrete bounds for dossier listings. Absent or invalid values fall back to
// the defaults; the limit is capped so no caller can request an unbounded page.
func GetPaginationParams(offset *int, limit *int) (int, int) {
	finalOffset := 0
	if offset != nil && *offset >= 0 {
		finalOffset = *offset
	}

	finalLimit := pageSizeDefault
	if limit != nil && *limit > 0 {
		finalLimit = min(*limit, pageSizeMax)
	}

	return finalOffset, finalLimit
}
