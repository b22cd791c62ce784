// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// Well-known groups that must not be granted access, by SDDL abbreviation
// and full SID
var insecureSIDs = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkOpenFilePermissions inspects the DACL of an open file. NTFS does not
// allow replacing a file held open, so checking by name is race free.
func checkOpenFilePermissions(f *os.File) error {
	sd, err := windows.GetNamedSecurityInfo(
		f.Name(),
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf(
			"failed to get security info for %q: %w",
			f.Name(),
			err,
		)
	}
	sddl := sd.String()
	if sddl == "" {
		return fmt.Errorf(
			"failed to read security descriptor for %q",
			f.Name(),
		)
	}
	return checkSDDL(f.Name(), sddl)
}

// checkSDDL fails when the DACL is missing or has an allow ACE for one of
// insecureSIDs
func checkSDDL(path, sddl string) error {
	_, dacl, ok := strings.Cut(sddl, "D:")
	if !ok {
		return fmt.Errorf(
			"secret file %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	if idx := strings.Index(dacl, "S:"); idx >= 0 {
		dacl = dacl[:idx]
	}
	for {
		start := strings.IndexByte(dacl, '(')
		if start < 0 {
			return nil
		}
		end := strings.IndexByte(dacl[start:], ')')
		if end < 0 {
			return nil
		}
		ace := dacl[start+1 : start+end]
		dacl = dacl[start+end+1:]

		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(ace, ";")
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		if name, ok := insecureSIDs[fields[5]]; ok {
			return fmt.Errorf(
				"secret file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
}
