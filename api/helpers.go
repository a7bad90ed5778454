package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/holiman/uint256"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// parseAmount parses a decimal or 0x prefixed amount. It must fit in an
// uint256 (the token amount type) and in a field element, and it must not be
// zero.
func parseAmount(s string) (types.Field, error) {
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return types.Field{}, err
	}
	if v.IsZero() {
		return types.Field{}, fmt.Errorf("amount must be positive")
	}
	if v.ToBig().Cmp(types.Modulus()) >= 0 {
		return types.Field{}, fmt.Errorf("amount exceeds the field modulus")
	}
	return types.NewField(v.ToBig()), nil
}
