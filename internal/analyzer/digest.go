package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Digest returns a digest identifying the content of the members and
// the options affecting the analysis. Equal digests mean equal reports
// except for RunID and Runtime.
func Digest(members *Members, options ...Option) (string, error) {
	var opts Options
	for _, set := range options {
		set(&opts)
	}
	h := sha256.New()
	for _, filename := range []string{members.MethodTrace, members.PacketCapture} {
		fp, err := os.Open(filename)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, fp)
		fp.Close()
		if err != nil {
			return "", err
		}
	}
	fmt.Fprintf(h, "schema=%d\n", ReportSchema)
	fmt.Fprintf(h, "offset=%d\nslack=%d\n", opts.ClockOffset, opts.Slack)
	fmt.Fprintf(h, "network=%s\n", strings.Join(opts.networkClassPrefixes(), ","))
	fmt.Fprintf(h, "framework=%s\n", strings.Join(opts.frameworkClassPrefixes(), ","))
	if fo := opts.Flows; fo != nil {
		fmt.Fprintf(h, "device=%s\nfingerprint=%d\n",
			strings.Join(fo.DeviceAddrs, ","), fo.FingerprintBytes)
		if fo.Geo != nil {
			fmt.Fprintf(h, "geo=%s\n", fo.Geo.Digest())
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
