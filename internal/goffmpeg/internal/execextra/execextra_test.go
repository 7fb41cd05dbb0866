package execextra

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"testing"
)

func shellCommand(t *testing.T, script string) *Cmd {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	return Command("/bin/sh", "-c", script)
}

func TestExtraOutPipe(t *testing.T) {
	c := shellCommand(t, "")
	out, outFd, outErr := c.ExtraOutPipe()
	if outErr != nil {
		t.Fatal(outErr)
	}
	c.Args[2] = fmt.Sprintf("printf hello >&%d", outFd)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	b := &bytes.Buffer{}
	if _, err := io.Copy(b, out); err != nil {
		t.Error(err)
	}

	// wait should be done after all reads are complete
	if err := c.Wait(); err != nil {
		t.Fatal(err)
	}

	if expected := "hello"; b.String() != expected {
		t.Errorf("expected %q got %q", expected, b.String())
	}
}

func TestExtraOut(t *testing.T) {
	c := shellCommand(t, "")
	actualBuffer := &bytes.Buffer{}
	outFd, outErr := c.ExtraOut(actualBuffer)
	if outErr != nil {
		t.Fatal(outErr)
	}
	progressBuffer := &bytes.Buffer{}
	progressFd, progressErr := c.ExtraOut(progressBuffer)
	if progressErr != nil {
		t.Fatal(progressErr)
	}
	c.Args[2] = fmt.Sprintf("printf hello >&%d; printf progress >&%d", outFd, progressFd)
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	if expected := "hello"; actualBuffer.String() != expected {
		t.Errorf("expected %q got %q", expected, actualBuffer.String())
	}
	if expected := "progress"; progressBuffer.String() != expected {
		t.Errorf("expected %q got %q", expected, progressBuffer.String())
	}
}

func TestExtraOutFile(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()

	c := shellCommand(t, "")
	outFd, err := c.ExtraOut(pw)
	if err != nil {
		t.Fatal(err)
	}
	c.CloseAfterStart(pw)
	c.Args[2] = fmt.Sprintf("printf hello >&%d", outFd)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	bs, err := io.ReadAll(pr)
	if err != nil {
		t.Error(err)
	}
	if err := c.Wait(); err != nil {
		t.Fatal(err)
	}
	if expected := "hello"; string(bs) != expected {
		t.Errorf("expected %q got %q", expected, string(bs))
	}
}

func TestAbort(t *testing.T) {
	c := Command("true")
	out, _, err := c.ExtraOutPipe()
	if err != nil {
		t.Fatal(err)
	}
	c.Abort()
	if _, err := out.Read(make([]byte, 1)); err == nil {
		t.Error("expected read on aborted pipe to fail")
	}
}
