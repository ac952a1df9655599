package particles

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/DataDog/zstd"

	"github.com/mesokit/mesokit/mkerr"
)

const checkpointMagic = uint32(0x4d4b5056) // "MKPV"

// Checkpoint writes the local partition's persistent channels into
// folder/<name>.chk, zstd-compressed. Halo contents are rebuilt by the
// first exchange after restart and are not saved.
func (pv *ParticleVector) Checkpoint(folder string) error {
	var buf bytes.Buffer
	writeStoreRecord(&buf, pv.Local)
	binary.Write(&buf, binary.LittleEndian, pv.nextID)

	compressed, err := zstd.Compress(nil, buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing checkpoint of %q: %w", pv.name, err)
	}
	path := filepath.Join(folder, pv.name+".chk")
	return os.WriteFile(path, compressed, 0o644)
}

// Restart reads the record written by Checkpoint.
func (pv *ParticleVector) Restart(folder string) error {
	path := filepath.Join(folder, pv.name+".chk")
	compressed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", mkerr.ErrRestart, path, err)
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return fmt.Errorf("%w: decompressing %s: %v", mkerr.ErrRestart, path, err)
	}
	r := bytes.NewReader(raw)
	if err := readStoreRecord(r, pv.Local, path); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &pv.nextID); err != nil {
		return fmt.Errorf("%w: truncated %s: %v", mkerr.ErrRestart, path, err)
	}
	pv.BumpMotionStamp()
	return nil
}

// Checkpoint for object vectors additionally saves per-object persistent
// channels (rigid motions and the like).
func (ov *ObjectVector) Checkpoint(folder string) error {
	var buf bytes.Buffer
	writeStoreRecord(&buf, ov.Local)
	binary.Write(&buf, binary.LittleEndian, ov.nextID)
	binary.Write(&buf, binary.LittleEndian, int64(ov.ObjSize))
	writeStoreRecord(&buf, ov.LocalObjects)

	compressed, err := zstd.Compress(nil, buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing checkpoint of %q: %w", ov.name, err)
	}
	path := filepath.Join(folder, ov.name+".chk")
	return os.WriteFile(path, compressed, 0o644)
}

func (ov *ObjectVector) Restart(folder string) error {
	path := filepath.Join(folder, ov.name+".chk")
	compressed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", mkerr.ErrRestart, path, err)
	}
	raw, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return fmt.Errorf("%w: decompressing %s: %v", mkerr.ErrRestart, path, err)
	}
	r := bytes.NewReader(raw)
	if err := readStoreRecord(r, ov.Local, path); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &ov.nextID); err != nil {
		return fmt.Errorf("%w: truncated %s: %v", mkerr.ErrRestart, path, err)
	}
	var objSize int64
	if err := binary.Read(r, binary.LittleEndian, &objSize); err != nil {
		return fmt.Errorf("%w: truncated %s: %v", mkerr.ErrRestart, path, err)
	}
	if int(objSize) != ov.ObjSize {
		return fmt.Errorf("%w: %s: object size %d != registered %d",
			mkerr.ErrRestart, path, objSize, ov.ObjSize)
	}
	if err := readStoreRecord(r, ov.LocalObjects, path); err != nil {
		return err
	}
	ov.BumpMotionStamp()
	return nil
}

func writeStoreRecord(buf *bytes.Buffer, ds *DataStore) {
	names := ds.PersistentNames()
	binary.Write(buf, binary.LittleEndian, checkpointMagic)
	binary.Write(buf, binary.LittleEndian, int64(ds.Size()))
	binary.Write(buf, binary.LittleEndian, int32(len(names)))
	for _, name := range names {
		ch, _ := ds.Channel(name)
		binary.Write(buf, binary.LittleEndian, int32(len(name)))
		buf.WriteString(name)
		binary.Write(buf, binary.LittleEndian, int32(ch.Kind))
		elem := make([]byte, ch.Kind.elemBytes())
		for i := 0; i < ds.Size(); i++ {
			ch.putElem(elem, i)
			buf.Write(elem)
		}
	}
}

func readStoreRecord(r *bytes.Reader, ds *DataStore, path string) error {
	bad := func(what string) error {
		return fmt.Errorf("%w: %s: %s", mkerr.ErrRestart, path, what)
	}
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != checkpointMagic {
		return bad("bad magic")
	}
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return bad("truncated count")
	}
	var nch int32
	if err := binary.Read(r, binary.LittleEndian, &nch); err != nil {
		return bad("truncated channel count")
	}
	ds.Resize(int(n))
	for c := int32(0); c < nch; c++ {
		var nameLen int32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return bad("truncated channel name")
		}
		nameBuf := make([]byte, nameLen)
		if _, err := r.Read(nameBuf); err != nil {
			return bad("truncated channel name")
		}
		var kind int32
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return bad("truncated channel kind")
		}
		name := string(nameBuf)
		if err := ds.Create(name, Kind(kind), Persistent); err != nil {
			return fmt.Errorf("%w: %s: channel %q: %v", mkerr.ErrRestart, path, name, err)
		}
		ch, _ := ds.Channel(name)
		elem := make([]byte, ch.Kind.elemBytes())
		for i := 0; i < int(n); i++ {
			if _, err := r.Read(elem); err != nil {
				return bad("truncated channel payload")
			}
			ch.getElem(elem, i)
		}
	}
	return nil
}
