package goffmpeg

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// VersionParts ffmpeg version
type VersionParts struct {
	Full    string `json:"full"`
	Release string `json:"release"`
	Major   uint   `json:"major"`
	Minor   uint   `json:"minor"`
	Patch   uint   `json:"patch"`
}

// AtLeast reports if version is major.minor or later. Unparsable versions,
// like git builds, are assumed to be recent.
func (v VersionParts) AtLeast(major, minor uint) bool {
	if v.Major == 0 && v.Minor == 0 {
		return true
	}
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// ffmpeg version 4.2.2 Copyright (c) 2000-2019 the FFmpeg developers
// ffmpeg version n4.2.2 Copyright (c) 2000-2019 the FFmpeg developers
var versionLineRe = regexp.MustCompile(`^ffmpeg version (?P<release>(?:\w*(?P<major>\d+))(?:\.(?P<minor>\d+))(?:\.(?P<patch>\d+))?) Copyright.*$`)

func reMatchNamedGroups(re *regexp.Regexp, s string) map[string]string {
	m := map[string]string{}
	sm := re.FindStringSubmatch(s)
	if sm == nil {
		return m
	}
	for i, name := range re.SubexpNames() {
		if name != "" {
			m[name] = sm[i]
		}
	}
	return m
}

// ParseVersion parses ffmpeg -version output
func ParseVersion(full string) (VersionParts, error) {
	versionLines := strings.Split(full, "\n")
	if len(versionLines) == 0 || versionLines[0] == "" {
		return VersionParts{}, errors.New("no version lines")
	}

	versionMatch := reMatchNamedGroups(versionLineRe, strings.TrimRight(versionLines[0], "\r"))

	release := versionMatch["release"]
	major, _ := strconv.Atoi(versionMatch["major"])
	minor, _ := strconv.Atoi(versionMatch["minor"])
	patch := 0
	if versionMatch["patch"] != "" {
		patch, _ = strconv.Atoi(versionMatch["patch"])
	}

	return VersionParts{
		Full:    full,
		Release: release,
		Major:   uint(major),
		Minor:   uint(minor),
		Patch:   uint(patch),
	}, nil
}

// Version return ffmpeg version
func Version(ctx context.Context) (VersionParts, error) {
	versionBytes, err := exec.CommandContext(ctx, FFmpegPath, "-version").Output()
	if err != nil {
		return VersionParts{}, err
	}
	return ParseVersion(string(versionBytes))
}
