// framedump decodes a captured byte stream of the game protocol: it
// deobfuscates each frame, verifies the digest and prints one line per
// frame. Input is hex, read from the arguments or stdin, whitespace
// ignored. With -key, 0x3003 login payloads are additionally decrypted
// so the user hash and roster hash become visible.
//
// Usage:
//
//	framedump [-key hexkey] [hexdump...]
//	tcpdump -x ... | framedump
package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fiveserver/fiveserver/internal/crypto"
	"github.com/fiveserver/fiveserver/internal/protocol"
)

func main() {
	key := flag.String("key", "", "hex Blowfish key for decoding 0x3003 login payloads")
	flag.Parse()

	var cipher *crypto.AuthCipher
	if *key != "" {
		c, err := crypto.NewAuthCipher(*key)
		if err != nil {
			log.Fatalf("bad cipher key: %v", err)
		}
		cipher = c
	}

	data, err := readHex(flag.Args())
	if err != nil {
		log.Fatalf("reading input: %v", err)
	}
	if len(data) == 0 {
		log.Fatal("no input: pass a hex dump as arguments or on stdin")
	}

	r := bytes.NewReader(data)
	buf := make([]byte, protocol.MaxFrameSize)
	for n := 1; ; n++ {
		offset := len(data) - r.Len()
		f, err := protocol.ReadFrame(r, buf)
		if err != nil {
			if errors.Is(err, io.EOF) && offset == len(data) {
				return
			}
			log.Fatalf("frame %d at offset %d: %v", n, offset, err)
		}
		fmt.Printf("frame %-3d offset %-6d opcode 0x%04x count %-4d len %d\n",
			n, offset, f.Header.Opcode, f.Header.Count, f.Header.Length)
		if len(f.Body) > 0 {
			fmt.Printf("  body  %s\n", hex.EncodeToString(f.Body))
		}
		if cipher != nil && f.Header.Opcode == 0x3003 && len(f.Body) >= 64 {
			dumpAuth(cipher, f.Body)
		}
	}
}

// dumpAuth prints the fields of an encrypted login payload: the user
// hash as the server looks it up (raw bytes 32..47) and the roster
// hash from the decrypted block.
func dumpAuth(cipher *crypto.AuthCipher, body []byte) {
	fmt.Printf("  user  %s\n", hex.EncodeToString(body[32:48]))
	plain, err := cipher.Decrypt(body)
	if err != nil {
		fmt.Printf("  decrypt failed: %v\n", err)
		return
	}
	fmt.Printf("  roster %s\n", hex.EncodeToString(plain[48:64]))
}

// readHex joins the arguments, or stdin when there are none, strips
// whitespace and decodes the hex.
func readHex(args []string) ([]byte, error) {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, "")
	} else {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		text = string(raw)
	}
	text = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, text)
	return hex.DecodeString(text)
}
