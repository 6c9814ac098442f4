package store

import "strings"

// Reference layout: refs/{hash}/result -> commit id
//                    refs/{hash}/narinfo -> blob id (metadata record)
//                    refs/{hash}/deps/{dep}/result   -> symbolic to refs/{dep}/result
//                    refs/{hash}/deps/{dep}/narinfo  -> symbolic to refs/{dep}/narinfo
// Grounded on original_source/src/git_store/store.rs's
// get_package_ref/get_result_ref/get_narinfo_ref.

func packageRef(hash string) string { return "refs/" + hash }
func resultRef(hash string) string  { return packageRef(hash) + "/result" }
func narinfoRef(hash string) string { return packageRef(hash) + "/narinfo" }
func depResultRef(hash, dep string) string {
	return packageRef(hash) + "/deps/" + dep + "/result"
}
func depNarinfoRef(hash, dep string) string {
	return packageRef(hash) + "/deps/" + dep + "/narinfo"
}

// hashFromResultRef recovers the package hash from a "refs/{hash}/result"
// name, fixing the original's literal "{PACKGAGE_PREFIX_REF}/*" glob bug
// (spec's Open Question): relaycache globs "refs/*/result" directly
// instead of an un-interpolated template placeholder.
func hashFromResultRef(ref string) (string, bool) {
	const suffix = "/result"
	if !strings.HasSuffix(ref, suffix) {
		return "", false
	}
	trimmed := strings.TrimSuffix(ref, suffix)
	trimmed = strings.TrimPrefix(trimmed, "refs/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	return trimmed, true
}
