// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package imports

import "regexp"

// importRe matches @importRazor("path") and captures the path.
var importRe = regexp.MustCompile(`@importRazor\("([^"]*)"\)`)
