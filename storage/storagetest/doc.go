// Package storagetest provides a conformance suite shared by every
// storage.Store implementation.
//
//	func TestStore(t *testing.T) {
//		storagetest.Run(t, func(t *testing.T) storage.Store {
//			s := memory.New()
//			t.Cleanup(s.Stop)
//			return s
//		})
//	}
package storagetest
