package handles

import "testing"

func TestEveryKindHasATable(t *testing.T) {
	seen := map[string]ObjectKind{}
	for _, k := range AllKinds {
		tbl := k.TableName()
		if tbl == "" {
			t.Fatalf("kind %s has no table", k)
		}
		if prev, ok := seen[tbl]; ok {
			t.Fatalf("kinds %s and %s share table %s", prev, k, tbl)
		}
		seen[tbl] = k
	}
	if ObjectKind("user").Valid() {
		t.Fatalf("unknown kind reported valid")
	}
}
