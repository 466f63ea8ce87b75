package multiset

import "testing"

func TestMultisetIsOrderIndependent(t *testing.T) {
	a := New()
	a.Add([]byte("alice"))
	a.Add([]byte("bob"))

	b := New()
	b.Add([]byte("bob"))
	b.Add([]byte("carol"))
	b.Add([]byte("alice"))
	b.Remove([]byte("carol"))

	if !a.Hash().Equal(b.Hash()) {
		t.Fatalf("TestMultisetIsOrderIndependent: expected equal hashes, got %s and %s", a.Hash(), b.Hash())
	}

	restored, err := FromBytes(b.Serialize())
	if err != nil {
		t.Fatalf("TestMultisetIsOrderIndependent: FromBytes: %+v", err)
	}
	if !restored.Hash().Equal(a.Hash()) {
		t.Fatalf("TestMultisetIsOrderIndependent: deserialized multiset has a different hash")
	}

	clone := a.Clone()
	clone.Add([]byte("dave"))
	if clone.Hash().Equal(a.Hash()) {
		t.Fatalf("TestMultisetIsOrderIndependent: modifying a clone changed the original")
	}
}
