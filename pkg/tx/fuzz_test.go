package tx

import (
	"encoding/json"
	"testing"
)

// FuzzTransactionUnmarshal checks that arbitrary JSON never panics Unmarshal,
// Validate, Hash, or VerifySignature.
func FuzzTransactionUnmarshal(f *testing.F) {
	f.Add([]byte(`{"from":"0000000000000000000000000000000000000000000000000000000000000000","to":"0101010101010101010101010101010101010101010101010101010101010101","amount":"1000","fee":"10","nonce":1,"signature":"","public_key":""}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"amount":"not-a-number"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var txn Transaction
		if err := json.Unmarshal(data, &txn); err != nil {
			return
		}
		txn.Hash()
		txn.Validate()
		txn.VerifySignature()
		txn.IsCoinbase()
	})
}
