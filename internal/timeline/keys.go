package timeline

import "encoding/binary"

var (
	recordsPrefix = []byte("records/")
	cursorKey     = []byte("meta/cursor")
	byHashPrefix  = []byte("by_hash/")
)

// recordKey builds the records/{slot:u64be}/{signature}/{seq:u32be}
// primary key the durable store fixes.
func recordKey(slot uint64, signature string, seq uint64) []byte {
	k := make([]byte, 0, len(recordsPrefix)+8+1+len(signature)+1+4)
	k = append(k, recordsPrefix...)
	var slotBuf [8]byte
	binary.BigEndian.PutUint64(slotBuf[:], slot)
	k = append(k, slotBuf[:]...)
	k = append(k, '/')
	k = append(k, []byte(signature)...)
	k = append(k, '/')
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], uint32(seq))
	k = append(k, seqBuf[:]...)
	return k
}

// recordsRangeEnd returns the exclusive upper bound for a full scan of
// the records/ keyspace.
func recordsRangeEnd() []byte {
	end := append([]byte(nil), recordsPrefix...)
	end[len(end)-1]++
	return end
}

func hashKey(hash string) []byte {
	return append(append([]byte(nil), byHashPrefix...), []byte(hash)...)
}
